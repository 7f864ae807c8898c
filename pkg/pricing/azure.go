package pricing

var azureRates = map[string]regionRate{
	"eastus":        {pricePerKWh: 0.10, carbonKgPerKWh: 0.379},
	"eastus2":       {pricePerKWh: 0.10, carbonKgPerKWh: 0.379},
	"westus2":       {pricePerKWh: 0.08, carbonKgPerKWh: 0.117},
	"westeurope":    {pricePerKWh: 0.21, carbonKgPerKWh: 0.328},
	"northeurope":   {pricePerKWh: 0.20, carbonKgPerKWh: 0.316},
	"swedencentral": {pricePerKWh: 0.09, carbonKgPerKWh: 0.009},
	"southeastasia": {pricePerKWh: 0.17, carbonKgPerKWh: 0.408},
}

// NewAzureProvider returns tariffs for Azure regions, defaulting to eastus
func NewAzureProvider() Provider {
	return &regionalProvider{name: "azure", defaultRegion: "eastus", rates: azureRates}
}
