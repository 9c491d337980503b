package config

// Settings represents the full tool configuration. It is resolved once in the
// composition root and passed explicitly into every component constructor.
type Settings struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// GatewayConfig identifies the remote admin API.
type GatewayConfig struct {
	BaseURL string `mapstructure:"baseURL"`
	APIKey  string `mapstructure:"apiKey"`
}

// HTTPConfig holds global HTTP client settings.
type HTTPConfig struct {
	Timeout string `mapstructure:"timeout"`
}

// SyncConfig configures the reconciliation run.
type SyncConfig struct {
	// Workers bounds concurrent per-resource network calls within a phase.
	Workers int `mapstructure:"workers"`

	// ConfigFile is the default base configuration document. The co-located
	// *.local.json override is discovered automatically.
	ConfigFile string `mapstructure:"configFile"`
}

// PricingConfig configures the third-party model price catalog.
type PricingConfig struct {
	CatalogURL string `mapstructure:"catalogURL"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`         // debug, info, warn, error
	Format        string `mapstructure:"format"`        // json, human, or empty for auto
	RedactAPIKeys bool   `mapstructure:"redactAPIKeys"` // Redact API keys in logs
}

// Merge combines multiple settings instances, prioritising the latter ones.
func Merge(settings ...Settings) Settings {
	result := Settings{}
	for _, s := range settings {
		result = merge(result, s)
	}
	return result
}

func merge(base, overlay Settings) Settings {
	result := base

	result.Gateway = chooseGateway(base.Gateway, overlay.Gateway)
	result.HTTP = chooseHTTP(base.HTTP, overlay.HTTP)
	result.Sync = chooseSync(base.Sync, overlay.Sync)
	result.Pricing = choosePricing(base.Pricing, overlay.Pricing)
	result.Logging = chooseLogging(base.Logging, overlay.Logging)

	return result
}

func chooseGateway(base, overlay GatewayConfig) GatewayConfig {
	result := base
	if overlay.BaseURL != "" {
		result.BaseURL = overlay.BaseURL
	}
	if overlay.APIKey != "" {
		result.APIKey = overlay.APIKey
	}
	return result
}

func chooseHTTP(base, overlay HTTPConfig) HTTPConfig {
	if overlay.Timeout != "" {
		return overlay
	}
	return base
}

func chooseSync(base, overlay SyncConfig) SyncConfig {
	result := base
	if overlay.Workers != 0 {
		result.Workers = overlay.Workers
	}
	if overlay.ConfigFile != "" {
		result.ConfigFile = overlay.ConfigFile
	}
	return result
}

func choosePricing(base, overlay PricingConfig) PricingConfig {
	if overlay.CatalogURL != "" {
		return overlay
	}
	return base
}

func chooseLogging(base, overlay LoggingConfig) LoggingConfig {
	if overlay.Level != "" || overlay.Format != "" || overlay.RedactAPIKeys {
		return overlay
	}
	return base
}
