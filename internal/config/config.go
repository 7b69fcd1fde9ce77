// Package config resolves the server connection settings from an env file
// and the process environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"go.kibob.dev/kibob/internal/errors"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
)

// Environment variables consumed by the tool.
const (
	EnvURL         = "KIBANA_URL"
	EnvUsername    = "KIBANA_USERNAME"
	EnvPassword    = "KIBANA_PASSWORD"
	EnvAPIKey      = "KIBANA_APIKEY"
	EnvMaxRequests = "KIBANA_MAX_REQUESTS"
)

// DefaultEnvFile is loaded when --env is not given; a missing default file
// is fine as long as the variables are already exported.
const DefaultEnvFile = ".env"

// Config is the resolved connection configuration.
type Config struct {
	URL         string
	Auth        kibana.Auth
	MaxInflight int
}

// Load reads the env file (when present), then resolves the configuration
// from the environment. Credential conflicts and malformed values surface
// here, before any network I/O.
func Load(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit {
			return nil, errors.WrapUserError(fmt.Sprintf("failed to load env file %s", envFile), err)
		}
		logging.Debugf("no %s file, using the process environment", envFile)
	}

	rawURL := strings.TrimSpace(os.Getenv(EnvURL))
	if rawURL == "" {
		return nil, errors.NewUserErrorWithHint(
			fmt.Sprintf("%s is not set", EnvURL),
			fmt.Sprintf("set %s in the environment or an --env file", EnvURL))
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.NewUserError(fmt.Sprintf("%s %q is not a valid URL", EnvURL, rawURL))
	}

	auth, err := resolveAuth()
	if err != nil {
		return nil, err
	}

	maxInflight := kibana.DefaultMaxInflight
	if raw := strings.TrimSpace(os.Getenv(EnvMaxRequests)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, errors.NewUserError(fmt.Sprintf("%s %q is not a positive integer", EnvMaxRequests, raw))
		}
		maxInflight = n
	}

	return &Config{
		URL:         strings.TrimRight(rawURL, "/"),
		Auth:        auth,
		MaxInflight: maxInflight,
	}, nil
}

func resolveAuth() (kibana.Auth, error) {
	username := os.Getenv(EnvUsername)
	password := os.Getenv(EnvPassword)
	apiKey := os.Getenv(EnvAPIKey)

	switch {
	case apiKey != "" && (username != "" || password != ""):
		return nil, errors.NewUserErrorWithHint(
			"both basic and API key credentials are configured",
			fmt.Sprintf("set either %s/%s or %s, not both", EnvUsername, EnvPassword, EnvAPIKey))
	case apiKey != "":
		return kibana.AuthAPIKey{Key: apiKey}, nil
	case username != "":
		if password == "" {
			prompted, err := promptPassword(username)
			if err != nil {
				return nil, err
			}
			password = prompted
		}
		return kibana.AuthBasic{Username: username, Password: password}, nil
	default:
		return kibana.AuthNone{}, nil
	}
}

// promptPassword asks on the terminal when a username is configured without
// a password. Outside a terminal there is nobody to ask.
func promptPassword(username string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", errors.NewUserErrorWithHint(
			fmt.Sprintf("%s is set but %s is not", EnvUsername, EnvPassword),
			fmt.Sprintf("set %s or run interactively to be prompted", EnvPassword))
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), nil
}
