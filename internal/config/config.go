package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"k8s.io/utils/env"

	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/constant"
)

// ErrMissingProvisioningKey is returned by Validate when no provisioning key is configured.
var ErrMissingProvisioningKey = errors.New("OPENROUTER_PROVISIONING_KEY environment variable is not set")

// Config holds application configuration
type Config struct {
	// ProvisioningKey authenticates this service against the upstream key API.
	// It is read once at startup and never changes afterwards.
	ProvisioningKey string

	// Server configuration
	Host        string
	Port        string
	DebugMode   bool
	CORSEnabled bool

	// Upstream configuration
	UpstreamURL     string
	UpstreamTimeout time.Duration

	TLS TLSConfig
}

// Load loads configuration from environment variables and binds command line flags
// on top of it. Flags must be parsed before calling Validate.
func Load() *Config {
	c := fromEnv()
	c.bindFlags(flag.CommandLine)

	return c
}

func fromEnv() *Config {
	debugMode, _ := env.GetBool("DEBUG_MODE", false)
	corsEnabled, _ := env.GetBool("CORS_ENABLED", false)

	c := &Config{
		ProvisioningKey: os.Getenv("OPENROUTER_PROVISIONING_KEY"),
		Host:            getEnvOrDefault("HOST", constant.DefaultHost),
		Port:            getEnvOrDefault("PORT", constant.DefaultPort),
		DebugMode:       debugMode,
		CORSEnabled:     corsEnabled,
		UpstreamURL:     getEnvOrDefault("OPENROUTER_API_URL", constant.DefaultUpstreamURL),
		UpstreamTimeout: constant.DefaultUpstreamTimeout,
		TLS:             loadTLSConfig(),
	}

	if raw := env.GetString("UPSTREAM_TIMEOUT", ""); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			c.UpstreamTimeout = d
		} else {
			// Surfaced by Validate.
			c.UpstreamTimeout = -1
		}
	}

	return c
}

// bindFlags will parse the given flagset and bind values to selected config options
func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "Address to listen on")
	fs.StringVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.StringVar(&c.UpstreamURL, "upstream-url", c.UpstreamURL, "OpenRouter key provisioning endpoint")
	fs.DurationVar(&c.UpstreamTimeout, "upstream-timeout", c.UpstreamTimeout, "Timeout for the upstream provisioning call")
	fs.BoolVar(&c.DebugMode, "debug", c.DebugMode, "Enable debug logging")
	fs.BoolVar(&c.CORSEnabled, "cors", c.CORSEnabled, "Allow cross-origin requests")

	c.TLS.bindFlags(fs)
}

// Validate checks the configuration after flags have been parsed.
func (c *Config) Validate() error {
	if c.ProvisioningKey == "" {
		return ErrMissingProvisioningKey
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q: must be a number between 1 and 65535", c.Port)
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("invalid upstream timeout %s: must be a positive duration (e.g. \"30s\")", c.UpstreamTimeout)
	}

	if c.UpstreamURL == "" {
		return errors.New("upstream URL must not be empty")
	}

	return c.TLS.validate()
}

// Address returns the host:port pair the server binds to.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Secure reports whether the server should serve HTTPS.
func (c *Config) Secure() bool {
	return c.TLS.Enabled()
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
