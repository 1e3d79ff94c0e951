package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// VERSION is the running build's version string, logged at startup.
const VERSION = "1.0"

// Config holds every environment-derived setting the workers and HTTP
// handlers need (spec.md §6 Environment).
type Config struct {
	Server   ServerConfig
	Supabase SupabaseConfig
	Mail     MailConfig
	Defaults DefaultsConfig
	Security SecurityConfig
	LogLevel string
	Version  string
}

// ServerConfig controls the HTTP listener that exposes the worker endpoints.
type ServerConfig struct {
	Port int
	Host string
}

// SupabaseConfig points the store adapter at the PostgREST-fronted Postgres
// instance backing every repository.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	AnonKey        string
}

// MailConfig addresses the HTTP SMTP gateway the delivery worker posts to,
// plus the Resend key used for immediate bulk sends (spec.md §4.8).
type MailConfig struct {
	GatewayURL   string
	GatewayToken string
	ResendAPIKey string
}

// DefaultsConfig supplies fallback sender identity and operational contacts.
type DefaultsConfig struct {
	PublicFunctionsBaseURL string
	FromEmail               string
	FromName                string
	TeamNotifyEmail         string
}

// SecurityConfig holds the shared secrets for unsubscribe tokens and
// runner-to-runner authentication (spec.md §6: FLOWMAIL_RUNNER_TOKEN).
type SecurityConfig struct {
	UnsubscribeSigningKey string
	RunnerToken           string
}

// LoadOptions customizes how Load resolves configuration, mainly for tests.
type LoadOptions struct {
	EnvFile string
}

// Load loads configuration from the environment, optionally layering a
// ".env" file first.
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads the configuration with the given options.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEFAULT_FROM_NAME", "FlowMail")

	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		currentPath, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error getting current directory: %w", err)
		}
		v.AddConfigPath(currentPath)

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	supabaseURL := v.GetString("SUPABASE_URL")
	if supabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL must be set")
	}
	serviceRoleKey := v.GetString("SUPABASE_SERVICE_ROLE_KEY")
	if serviceRoleKey == "" {
		return nil, fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY must be set")
	}

	signingKey := v.GetString("UNSUBSCRIBE_SIGNING_KEY")
	if signingKey == "" {
		return nil, fmt.Errorf("UNSUBSCRIBE_SIGNING_KEY must be set")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("SERVER_PORT"),
			Host: v.GetString("SERVER_HOST"),
		},
		Supabase: SupabaseConfig{
			URL:            supabaseURL,
			ServiceRoleKey: serviceRoleKey,
			AnonKey:        v.GetString("SUPABASE_ANON_KEY"),
		},
		Mail: MailConfig{
			GatewayURL:   v.GetString("MAIL_GATEWAY_URL"),
			GatewayToken: v.GetString("MAIL_GATEWAY_TOKEN"),
			ResendAPIKey: v.GetString("RESEND_API_KEY"),
		},
		Defaults: DefaultsConfig{
			PublicFunctionsBaseURL: v.GetString("PUBLIC_FUNCTIONS_BASE_URL"),
			FromEmail:               v.GetString("DEFAULT_FROM_EMAIL"),
			FromName:                v.GetString("DEFAULT_FROM_NAME"),
			TeamNotifyEmail:         v.GetString("TEAM_NOTIFY_EMAIL"),
		},
		Security: SecurityConfig{
			UnsubscribeSigningKey: signingKey,
			RunnerToken:           v.GetString("FLOWMAIL_RUNNER_TOKEN"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
		Version:  VERSION,
	}

	return cfg, nil
}
