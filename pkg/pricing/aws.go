package pricing

// Indicative industrial electricity price ($/kWh) and grid intensity
// (kg CO2e/kWh) for the grids behind common AWS regions
var awsRates = map[string]regionRate{
	"us-east-1":      {pricePerKWh: 0.10, carbonKgPerKWh: 0.379},
	"us-east-2":      {pricePerKWh: 0.09, carbonKgPerKWh: 0.410},
	"us-west-2":      {pricePerKWh: 0.08, carbonKgPerKWh: 0.117},
	"eu-west-1":      {pricePerKWh: 0.20, carbonKgPerKWh: 0.316},
	"eu-central-1":   {pricePerKWh: 0.22, carbonKgPerKWh: 0.338},
	"eu-north-1":     {pricePerKWh: 0.09, carbonKgPerKWh: 0.009},
	"ap-southeast-1": {pricePerKWh: 0.17, carbonKgPerKWh: 0.408},
	"ap-northeast-1": {pricePerKWh: 0.21, carbonKgPerKWh: 0.463},
}

// NewAWSProvider returns tariffs for AWS regions, defaulting to us-east-1
func NewAWSProvider() Provider {
	return &regionalProvider{name: "aws", defaultRegion: "us-east-1", rates: awsRates}
}
