package main

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// setupLogging configures the global logger from LOG_FORMAT and LOG_LEVEL
func setupLogging(format, level string) {
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	logrus.WithFields(logrus.Fields{
		"format": format,
		"level":  lvl.String(),
	}).Info("Logging configured")
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}
