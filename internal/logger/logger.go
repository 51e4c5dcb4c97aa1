package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/config"
)

// Configure sets up the standard logrus logger used across the service.
func Configure(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)

	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
