package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"call-relay/internal/voicecall/relay"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Twilio TwilioConfig
	OpenAI OpenAIConfig
	Server ServerConfig
	Relay  RelayConfig
	Agent  Agent
}

// TwilioConfig holds the account used to place calls
type TwilioConfig struct {
	AccountSID      string
	AuthToken       string
	PhoneNumberFrom string
}

// OpenAIConfig holds realtime API credentials and endpoint
type OpenAIConfig struct {
	APIKey      string
	RealtimeURL string
	Model       string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
	// Domain is the public host Twilio reaches us on, without scheme or
	// trailing slash.
	Domain string
	// AllowedOrigins for CORS on the JSON API. Empty allows any origin.
	AllowedOrigins []string
}

// RelayConfig holds per-call relay tuning
type RelayConfig struct {
	HandshakeDelay time.Duration
	ShowTimingMath bool
}

// Load reads the environment (and .env outside production) and the optional
// agent persona file.
func Load() (*Config, error) {
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv builds the config from process environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.Twilio.AccountSID, err = requireEnv("TWILIO_ACCOUNT_SID"); err != nil {
		return nil, err
	}
	if cfg.Twilio.AuthToken, err = requireEnv("TWILIO_AUTH_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Twilio.PhoneNumberFrom, err = requireEnv("PHONE_NUMBER_FROM"); err != nil {
		return nil, err
	}

	rawDomain, err := requireEnv("DOMAIN")
	if err != nil {
		return nil, err
	}
	cfg.Server.Domain = NormalizeDomain(rawDomain)

	if cfg.OpenAI.APIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	cfg.OpenAI.RealtimeURL = getEnvWithDefault("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime")
	cfg.OpenAI.Model = getEnvWithDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-10-01")

	cfg.Server.Port, err = strconv.Atoi(getEnvWithDefault("PORT", "6060"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PORT: %w", err)
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}

	delayMs, err := strconv.Atoi(getEnvWithDefault("HANDSHAKE_DELAY_MS", "100"))
	if err != nil || delayMs <= 0 {
		return nil, fmt.Errorf("HANDSHAKE_DELAY_MS must be a positive integer, got %q", os.Getenv("HANDSHAKE_DELAY_MS"))
	}
	cfg.Relay.HandshakeDelay = time.Duration(delayMs) * time.Millisecond

	cfg.Relay.ShowTimingMath, err = strconv.ParseBool(getEnvWithDefault("SHOW_TIMING_MATH", "false"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SHOW_TIMING_MATH: %w", err)
	}

	cfg.Agent = DefaultAgent()
	if path := os.Getenv("AGENT_CONFIG_PATH"); path != "" {
		agent, err := LoadAgentFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Agent = *agent
	}

	return cfg, nil
}

// RelayConfig maps the loaded settings onto the per-call relay config.
func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		VoiceID:            c.Agent.Voice,
		SystemInstructions: c.Agent.Instructions,
		TurnDetectionMode:  c.Agent.TurnDetection,
		VerboseEventTypes:  relay.NewEventSet(c.Agent.VerboseEventTypes...),
		Greeting:           c.Agent.Greeting,
		Temperature:        c.Agent.Temperature,
		AudioFormat:        c.Agent.AudioFormat,
		Modalities:         c.Agent.Modalities,
		HandshakeDelay:     c.Relay.HandshakeDelay,
		ShowTimingMath:     c.Relay.ShowTimingMath,
	}
}

var schemePrefix = regexp.MustCompile(`^(\w+:)?//`)

// NormalizeDomain strips a leading scheme and trailing slashes.
func NormalizeDomain(raw string) string {
	d := schemePrefix.ReplaceAllString(strings.TrimSpace(raw), "")
	return strings.TrimRight(d, "/")
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
