package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Provider defines the interface for regional electricity tariffs
type Provider interface {
	GetTariff(ctx context.Context, region string) (*models.Tariff, error)
	Name() string
}

type Config struct {
	Provider              string
	Region                string
	CacheTTL              time.Duration
	DefaultPricePerKWh    float64
	DefaultCarbonKgPerKWh float64
}

// regionRate is one row of a provider's indicative tariff table
type regionRate struct {
	pricePerKWh    float64
	carbonKgPerKWh float64
}

// regionalProvider serves tariffs from a static per-region table, falling
// back to the provider's home region for regions it does not list
type regionalProvider struct {
	name          string
	defaultRegion string
	rates         map[string]regionRate
}

func (p *regionalProvider) Name() string {
	return p.name
}

func (p *regionalProvider) GetTariff(ctx context.Context, region string) (*models.Tariff, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if region == "" {
		region = p.defaultRegion
	}
	rate, ok := p.rates[region]
	if !ok {
		rate, ok = p.rates[p.defaultRegion]
		if !ok {
			return nil, fmt.Errorf("%s: no tariff for region %s", p.name, region)
		}
	}
	return &models.Tariff{
		Provider:       p.name,
		Region:         region,
		PricePerKWh:    rate.pricePerKWh,
		CarbonKgPerKWh: rate.carbonKgPerKWh,
		Currency:       "USD",
		LastUpdated:    time.Now(),
	}, nil
}
