package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged settings from files and environment variables.
func Load(opts LoaderOptions) (Settings, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "llmsync"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "LITELLM"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	// LITELLM_BASE_URL and LITELLM_API_KEY are the conventional names for
	// these two settings; bind them in addition to the structured keys.
	_ = v.BindEnv("gateway.baseURL", prefix+"_BASE_URL")
	_ = v.BindEnv("gateway.apiKey", prefix+"_API_KEY")

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Expand environment variables in config values
	s = expandEnvVars(s)

	return s, nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings.
func expandEnvVars(s Settings) Settings {
	s.Gateway.BaseURL = expandEnvString(s.Gateway.BaseURL)
	s.Gateway.APIKey = expandEnvString(s.Gateway.APIKey)
	s.HTTP.Timeout = expandEnvString(s.HTTP.Timeout)
	s.Sync.ConfigFile = expandEnvString(s.Sync.ConfigFile)
	s.Pricing.CatalogURL = expandEnvString(s.Pricing.CatalogURL)
	s.Logging.Level = expandEnvString(s.Logging.Level)
	s.Logging.Format = expandEnvString(s.Logging.Format)
	return s
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	// Replace ${VAR} syntax
	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1] // Remove ${ and }
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if not found
	})

	// Replace $VAR syntax (without braces)
	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:] // Remove $
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if not found
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout", "60s")

	v.SetDefault("sync.workers", 10)
	v.SetDefault("sync.configFile", "config.json")

	v.SetDefault("pricing.catalogURL",
		"https://raw.githubusercontent.com/BerriAI/litellm/refs/heads/main/model_prices_and_context_window.json")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.redactAPIKeys", true)
}
