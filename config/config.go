// Package config loads clearview settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable, e.g. CLEARVIEW_CLEARNODE_URL
const EnvPrefix = "clearview"

// Config is the process configuration
type Config struct {
	ClearNodeURL           string        `envconfig:"CLEARNODE_URL" required:"true"`
	ClearNodePublicKeyFile string        `envconfig:"CLEARNODE_PUBLIC_KEY_FILE"`
	ListenAddr             string        `envconfig:"LISTEN_ADDR" default:":9000"`
	RedisURL               string        `envconfig:"REDIS_URL"`
	SessionKeyTTL          time.Duration `envconfig:"SESSION_KEY_TTL" default:"0"`
	WalletKey              string        `envconfig:"WALLET_KEY"`
	StepTimeout            time.Duration `envconfig:"STEP_TIMEOUT" default:"30s"`
	PollInterval           time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	BalanceTopic           string        `envconfig:"BALANCE_TOPIC" default:"clearnode.balances"`
	EventTopic             string        `envconfig:"EVENT_TOPIC" default:"clearview.session"`
	LogLevel               string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat              string        `envconfig:"LOG_FORMAT" default:"json"`
}

func loadEnvironment(filename string) error {
	var err error
	if filename != "" {
		err = godotenv.Overload(filename)
	} else {
		err = godotenv.Load()
		// a missing .env file is fine
		if os.IsNotExist(err) {
			return nil
		}
	}
	return err
}

// Load reads an optional .env file and the environment
func Load(filename string) (*Config, error) {
	if err := loadEnvironment(filename); err != nil {
		return nil, err
	}

	config := new(Config)
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	u, err := url.Parse(c.ClearNodeURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid clearnode url %q", c.ClearNodeURL)
	}
	if c.StepTimeout < 0 {
		return errors.New("step timeout must not be negative")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.SessionKeyTTL < 0 {
		return errors.New("session key ttl must not be negative")
	}
	return nil
}
