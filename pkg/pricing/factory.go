package pricing

import (
	"context"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// NewProvider creates a tariff provider from config, detecting the cloud
// from cluster node labels when no provider is configured. clientset may be
// nil, in which case detection is skipped. The region to query is returned
// alongside the provider.
func NewProvider(ctx context.Context, clientset kubernetes.Interface, config *Config) (Provider, string, error) {
	provider := config.Provider
	region := config.Region

	if provider == "" && clientset != nil {
		detected, detectedRegion, err := DetectProvider(ctx, clientset)
		if err != nil {
			klog.V(1).InfoS("Cloud detection failed, using default tariff", "err", err)
		}
		provider = detected
		if region == "" {
			region = detectedRegion
		}
	}
	if provider == "" {
		provider = "default"
	}

	var p Provider
	switch provider {
	case "azure":
		p = NewAzureProvider()
	case "aws":
		p = NewAWSProvider()
	case "gcp":
		p = NewGCPProvider()
	case "default":
		p = NewDefaultProvider(config.DefaultPricePerKWh, config.DefaultCarbonKgPerKWh)
	default:
		return nil, "", fmt.Errorf("unknown provider: %s", provider)
	}

	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return WithCache(p, ttl), region, nil
}
