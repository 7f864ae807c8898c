package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"k8s.io/klog/v2"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Node annotations and pod labels read during discovery
const (
	AnnotationIdleWatts = "energy.opscart.io/idle-watts"
	AnnotationMaxWatts  = "energy.opscart.io/max-watts"
	LabelSLATier        = "energy.opscart.io/sla-tier"
)

// Power estimate for nodes without annotations
const (
	baseIdleWatts    = 30.0
	idleWattsPerCore = 10.0
	baseMaxWatts     = 50.0
	maxWattsPerCore  = 25.0
)

const bytesPerGB = 1024 * 1024 * 1024

type Scanner struct {
	clientset     kubernetes.Interface
	metricsClient metricsv.Interface
}

// New builds clients from kubeconfig, or ~/.kube/config when empty
func New(kubeconfig string) (*Scanner, error) {
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClient, err := metricsv.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	return NewWithClients(clientset, metricsClient), nil
}

// NewWithClients wraps existing clients
func NewWithClients(clientset kubernetes.Interface, metricsClient metricsv.Interface) *Scanner {
	return &Scanner{clientset: clientset, metricsClient: metricsClient}
}

// DiscoverHosts turns schedulable nodes into host profiles ordered by name
func (s *Scanner) DiscoverHosts(ctx context.Context) ([]models.HostProfile, error) {
	nodes, err := s.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var profiles []models.HostProfile
	for i := range nodes.Items {
		node := &nodes.Items[i]
		if node.Spec.Unschedulable {
			klog.V(2).InfoS("Skipping unschedulable node", "node", node.Name)
			continue
		}
		p, err := profileFromNode(node)
		if err != nil {
			klog.ErrorS(err, "Skipping node", "node", node.Name)
			continue
		}
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	klog.V(1).InfoS("Discovered hosts", "count", len(profiles))
	return profiles, nil
}

func profileFromNode(node *corev1.Node) (models.HostProfile, error) {
	cpu := node.Status.Allocatable.Cpu()
	mem := node.Status.Allocatable.Memory()

	cores := int(cpu.MilliValue() / 1000)
	if cores < 1 {
		cores = 1
	}
	p := models.HostProfile{
		ID:        node.Name,
		Cores:     cores,
		MemoryGB:  float64(mem.Value()) / bytesPerGB,
		IdleWatts: baseIdleWatts + idleWattsPerCore*float64(cores),
		MaxWatts:  baseMaxWatts + maxWattsPerCore*float64(cores),
	}

	if v, ok := node.Annotations[AnnotationIdleWatts]; ok {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s %q: %w", AnnotationIdleWatts, v, err)
		}
		p.IdleWatts = w
	}
	if v, ok := node.Annotations[AnnotationMaxWatts]; ok {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s %q: %w", AnnotationMaxWatts, v, err)
		}
		p.MaxWatts = w
	}
	return p, p.Validate()
}

// DiscoverWorkloads returns the running pods of namespace (all namespaces
// when empty) as workloads keyed by the node they run on
func (s *Scanner) DiscoverWorkloads(ctx context.Context, namespace string) (map[string][]models.Workload, error) {
	pods, err := s.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("status.phase", string(corev1.PodRunning)).String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	defaults := &namespaceTiers{ctx: ctx, clientset: s.clientset, tiers: make(map[string]models.SLATier)}
	out := make(map[string][]models.Workload)
	for _, pod := range pods.Items {
		if pod.Spec.NodeName == "" || pod.Status.Phase != corev1.PodRunning {
			continue
		}
		w := workloadFromPod(&pod, defaults.tier)
		if err := w.Validate(); err != nil {
			klog.V(2).InfoS("Skipping pod without requests", "pod", pod.Namespace+"/"+pod.Name)
			continue
		}
		out[pod.Spec.NodeName] = append(out[pod.Spec.NodeName], w)
	}
	return out, nil
}

// workloadFromPod sums container requests. Pods without a valid tier
// label take the tier of their namespace.
func workloadFromPod(pod *corev1.Pod, defaultTier func(namespace string) models.SLATier) models.Workload {
	var milliCPU, memBytes int64
	image := ""
	for _, c := range pod.Spec.Containers {
		milliCPU += c.Resources.Requests.Cpu().MilliValue()
		memBytes += c.Resources.Requests.Memory().Value()
		if image == "" {
			image = c.Image
		}
	}

	tier, err := models.ParseSLATier(pod.Labels[LabelSLATier])
	if err != nil || pod.Labels[LabelSLATier] == "" {
		tier = defaultTier(pod.Namespace)
	}
	return models.Workload{
		Name:     pod.Namespace + "/" + pod.Name,
		Image:    image,
		CPU:      float64(milliCPU) / 1000,
		MemoryGB: float64(memBytes) / bytesPerGB,
		Tier:     tier,
	}
}

// GetClientset returns the Kubernetes clientset for direct access
func (s *Scanner) GetClientset() kubernetes.Interface {
	return s.clientset
}
