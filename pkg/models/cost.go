package models

import "time"

// Tariff represents electricity pricing and grid emissions for a region
type Tariff struct {
	Provider       string
	Region         string
	PricePerKWh    float64 // currency units per kWh
	CarbonKgPerKWh float64 // kg CO2e per kWh
	Currency       string
	LastUpdated    time.Time
}
