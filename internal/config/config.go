package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for the remote service endpoints and refresh behaviour.
const (
	DefaultAPIURL          = "https://api.codegen.com"
	DefaultWebURL          = "https://codegen.com"
	DefaultRefreshInterval = 30
)

// Init wires viper defaults and environment bindings. Flags are bound by
// the command layer on top of this.
func Init() {
	viper.SetEnvPrefix("AGENTDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("api-url", DefaultAPIURL)
	viper.SetDefault("web-url", DefaultWebURL)
	viper.SetDefault("auto-refresh", true)
	viper.SetDefault("refresh-interval", DefaultRefreshInterval)
}

// APIURL returns the base URL of the agent-run service.
func APIURL() string { return strings.TrimRight(viper.GetString("api-url"), "/") }

// WebURL returns the base URL of the service's web UI.
func WebURL() string { return strings.TrimRight(viper.GetString("web-url"), "/") }

// AutoRefresh reports whether the TUI should poll for updates.
func AutoRefresh() bool { return viper.GetBool("auto-refresh") }

// RefreshInterval returns the polling period, floored at one second so a
// misconfigured zero never spins the event loop.
func RefreshInterval() time.Duration {
	secs := viper.GetInt("refresh-interval")
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
