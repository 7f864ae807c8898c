package scanner

import (
	"context"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
	"github.com/opscart/k8s-energy-consolidator/pkg/pricing"
)

// Tariff resolves the electricity tariff for the cluster, detecting the
// cloud and region from node labels when cfg leaves them empty. Lookup
// failures fall back to the flat default tariff.
func (s *Scanner) Tariff(ctx context.Context, cfg *pricing.Config) *models.Tariff {
	fallback := pricing.NewDefaultProvider(cfg.DefaultPricePerKWh, cfg.DefaultCarbonKgPerKWh)

	provider, region, err := pricing.NewProvider(ctx, s.clientset, cfg)
	if err == nil {
		if t, err := provider.GetTariff(ctx, region); err == nil {
			return t
		}
	}
	t, _ := fallback.GetTariff(ctx, region)
	return t
}
