package config

import (
	"github.com/sirupsen/logrus"
)

// NewLogger builds a logrus logger from the configuration
func (c *Config) NewLogger() (*logrus.Logger, error) {
	log := logrus.New()

	switch c.LogFormat {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if c.LogLevel != "" {
		level, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		log.SetLevel(level)
	}
	return log, nil
}
