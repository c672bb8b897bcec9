package config

const (
	MapsProviderGoogle = "google"
	MapsProviderMapbox = "mapbox"
)

type MapsConfig struct {
	Provider   string            `yaml:"provider"`
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
	Mapbox     *MapboxConfig     `yaml:"mapbox"`
	TravelMode string            `yaml:"travel_mode"`
}

type GoogleMapsConfig struct {
	APIKey string `yaml:"api_key"`
}

type MapboxConfig struct {
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
}

// Enabled reports whether travel-time ranking can be offered.
func (m *MapsConfig) Enabled() bool {
	switch m.Provider {
	case MapsProviderGoogle:
		return m.GoogleMaps.APIKey != ""
	case MapsProviderMapbox:
		return m.Mapbox.AccessToken != ""
	default:
		return false
	}
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		Provider: getEnv("MAPS_PROVIDER", "none"),
		GoogleMaps: &GoogleMapsConfig{
			APIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		},
		Mapbox: &MapboxConfig{
			AccessToken: getEnv("MAPBOX_ACCESS_TOKEN", ""),
			BaseURL:     getEnv("MAPBOX_BASE_URL", ""),
		},
		TravelMode: getEnv("MAPS_TRAVEL_MODE", "driving"),
	}
}
