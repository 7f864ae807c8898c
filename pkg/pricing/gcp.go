package pricing

var gcpRates = map[string]regionRate{
	"us-central1":     {pricePerKWh: 0.09, carbonKgPerKWh: 0.440},
	"us-east1":        {pricePerKWh: 0.09, carbonKgPerKWh: 0.560},
	"us-west1":        {pricePerKWh: 0.08, carbonKgPerKWh: 0.117},
	"europe-west1":    {pricePerKWh: 0.19, carbonKgPerKWh: 0.167},
	"europe-west4":    {pricePerKWh: 0.21, carbonKgPerKWh: 0.328},
	"europe-north1":   {pricePerKWh: 0.09, carbonKgPerKWh: 0.112},
	"asia-southeast1": {pricePerKWh: 0.17, carbonKgPerKWh: 0.408},
}

// NewGCPProvider returns tariffs for GCP regions, defaulting to us-central1
func NewGCPProvider() Provider {
	return &regionalProvider{name: "gcp", defaultRegion: "us-central1", rates: gcpRates}
}
