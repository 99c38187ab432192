package beacon

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ghodss/yaml.v1"

	"github.com/Tap30/beacon-go/adapters"
)

// Settings is the on-disk form of the client configuration. Durations are in
// minutes. YAML and JSON files are both accepted.
type Settings struct {
	ServerURL               string `json:"server_url"`
	APIKey                  string `json:"api_key"`
	TrackingCode            string `json:"tracking_code"`
	SessionTimeout          int    `json:"session_timeout"`
	PeriodicDispatchEnabled bool   `json:"periodic_dispatch_enabled"`
	DispatchPeriod          int    `json:"dispatch_period"`
	MaxCachedActivityCount  int    `json:"max_cached_activity_count"`
	LoggingEnabled          bool   `json:"logging_enabled"`
	LogLevel                string `json:"log_level"`
	AutoPushRegistration    bool   `json:"auto_push_registration"`
	DataDir                 string `json:"data_dir"`
}

// LoadSettings reads a settings file.
func LoadSettings(path string) (Settings, error) {
	rawData, err := os.ReadFile(path) // nolint:gosec // G304: path is chosen by the host
	if err != nil {
		return Settings{}, fmt.Errorf("unable to read settings file: %w", err)
	}
	return ParseSettings(rawData)
}

// ParseSettings decodes settings from YAML, which includes JSON.
func ParseSettings(rawData []byte) (Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal(rawData, &settings); err != nil {
		return Settings{}, fmt.Errorf("error parsing settings: %w", err)
	}
	return settings, nil
}

// ClientConfig maps the settings onto a ClientConfig. Unset values keep the
// NewClient defaults. Logging is silent unless enabled.
func (s Settings) ClientConfig() ClientConfig {
	config := ClientConfig{
		ServerURL:              s.ServerURL,
		APIKey:                 s.APIKey,
		TrackingCode:           s.TrackingCode,
		SessionTimeout:         time.Duration(s.SessionTimeout) * time.Minute,
		PeriodicDispatch:       s.PeriodicDispatchEnabled,
		DispatchPeriod:         time.Duration(s.DispatchPeriod) * time.Minute,
		MaxCachedActivityCount: s.MaxCachedActivityCount,
		AutoPushRegistration:   s.AutoPushRegistration,
		DataDir:                s.DataDir,
	}
	if s.LoggingEnabled {
		config.LoggerAdapter = adapters.NewPrintLoggerAdapter(adapters.ParseLogLevel(s.LogLevel))
	} else {
		config.LoggerAdapter = adapters.NewNoOpLoggerAdapter()
	}
	return config
}
