package pricing

import (
	"context"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Region labels in order of preference
var regionLabels = []string{
	"topology.kubernetes.io/region",
	"failure-domain.beta.kubernetes.io/region",
}

// cloud describes how to recognise a provider's nodes
type cloud struct {
	name          string
	providerID    string // spec.providerID scheme
	nodeLabel     string // label only that provider's managed nodes carry
	defaultRegion string
}

var clouds = []cloud{
	{name: "azure", providerID: "azure://", nodeLabel: "kubernetes.azure.com/cluster", defaultRegion: "eastus"},
	{name: "aws", providerID: "aws://", nodeLabel: "eks.amazonaws.com/nodegroup", defaultRegion: "us-east-1"},
	{name: "gcp", providerID: "gce://", nodeLabel: "cloud.google.com/gke-nodepool", defaultRegion: "us-central1"},
}

// DetectProvider detects the cloud provider from Kubernetes node labels and
// provider ids. The region returned is the one most of that provider's
// nodes run in; ties go to the alphabetically first region.
func DetectProvider(ctx context.Context, clientset kubernetes.Interface) (string, string, error) {
	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "default", "unknown", err
	}

	var detected *cloud
	regions := make(map[string]int)
	for i := range nodes.Items {
		node := &nodes.Items[i]
		c := classifyNode(node)
		if c == nil {
			continue
		}
		if detected == nil {
			detected = c
		}
		if c.name != detected.name {
			continue
		}
		if region := regionFromLabels(node.Labels, ""); region != "" {
			regions[region]++
		}
	}

	if detected == nil {
		return "default", "unknown", nil
	}
	return detected.name, dominantRegion(regions, detected.defaultRegion), nil
}

func classifyNode(node *corev1.Node) *cloud {
	for i := range clouds {
		c := &clouds[i]
		if id := node.Spec.ProviderID; id != "" && strings.HasPrefix(id, c.providerID) {
			return c
		}
	}
	for i := range clouds {
		c := &clouds[i]
		if _, exists := node.Labels[c.nodeLabel]; exists {
			return c
		}
	}
	return nil
}

func dominantRegion(counts map[string]int, fallback string) string {
	best, bestN := fallback, 0
	for region, n := range counts {
		if n > bestN || (n == bestN && region < best) {
			best, bestN = region, n
		}
	}
	return best
}

func regionFromLabels(labels map[string]string, fallback string) string {
	for _, key := range regionLabels {
		if region, exists := labels[key]; exists && region != "" {
			return region
		}
	}
	return fallback
}
