package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// DefaultProvider provides a flat tariff for on-prem or unknown clouds
type DefaultProvider struct {
	pricePerKWh    float64
	carbonKgPerKWh float64
}

func NewDefaultProvider(pricePerKWh, carbonKgPerKWh float64) *DefaultProvider {
	if pricePerKWh == 0 {
		pricePerKWh = 0.12
	}
	if carbonKgPerKWh == 0 {
		carbonKgPerKWh = 0.5
	}
	return &DefaultProvider{
		pricePerKWh:    pricePerKWh,
		carbonKgPerKWh: carbonKgPerKWh,
	}
}

func (d *DefaultProvider) Name() string {
	return "default"
}

func (d *DefaultProvider) GetTariff(ctx context.Context, region string) (*models.Tariff, error) {
	if region == "" {
		region = "unknown"
	}
	return &models.Tariff{
		Provider:       "default",
		Region:         region,
		PricePerKWh:    d.pricePerKWh,
		CarbonKgPerKWh: d.carbonKgPerKWh,
		Currency:       "USD",
		LastUpdated:    time.Now(),
	}, nil
}
