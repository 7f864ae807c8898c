package scanner

import (
	"context"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Environment represents the deployment environment of a namespace
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
	EnvironmentUnknown     Environment = "unknown"
)

// DefaultTier is the SLA tier given to pods of the environment that carry no tier label
func (e Environment) DefaultTier() models.SLATier {
	switch e {
	case EnvironmentProduction:
		return models.TierGold
	case EnvironmentStaging:
		return models.TierSilver
	default:
		return models.TierBronze
	}
}

// ClassifyNamespace determines the environment of a namespace from its
// "environment" or "tier" label, falling back to its name
func ClassifyNamespace(ctx context.Context, clientset kubernetes.Interface, namespace string) Environment {
	ns, err := clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err == nil && ns.Labels != nil {
		if env, exists := ns.Labels["environment"]; exists {
			return normalizeEnvironment(env)
		}
		if tier, exists := ns.Labels["tier"]; exists {
			if env := normalizeEnvironment(tier); env != EnvironmentUnknown {
				return env
			}
		}
	}

	return detectEnvironmentFromName(namespace)
}

func normalizeEnvironment(label string) Environment {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "production", "prod", "prd":
		return EnvironmentProduction
	case "staging", "stage", "stg":
		return EnvironmentStaging
	case "development", "dev", "test", "testing":
		return EnvironmentDevelopment
	default:
		return EnvironmentUnknown
	}
}

func detectEnvironmentFromName(namespace string) Environment {
	name := strings.ToLower(namespace)

	patterns := []struct {
		env      Environment
		contains []string
	}{
		{EnvironmentProduction, []string{"prod", "prd"}},
		{EnvironmentStaging, []string{"staging", "stage", "stg", "uat"}},
		{EnvironmentDevelopment, []string{"dev", "test", "sandbox", "demo"}},
	}
	for _, p := range patterns {
		for _, s := range p.contains {
			if strings.Contains(name, s) {
				return p.env
			}
		}
	}
	return EnvironmentUnknown
}

// namespaceTiers memoizes the default tier per namespace for one discovery pass
type namespaceTiers struct {
	ctx       context.Context
	clientset kubernetes.Interface
	tiers     map[string]models.SLATier
}

func (n *namespaceTiers) tier(namespace string) models.SLATier {
	if t, ok := n.tiers[namespace]; ok {
		return t
	}
	t := ClassifyNamespace(n.ctx, n.clientset, namespace).DefaultTier()
	n.tiers[namespace] = t
	return t
}
