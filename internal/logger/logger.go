// Package logger provides the structured logging setup for the decision
// engine: a configured logrus instance plus the audit trail wrapper.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds a logrus instance for the given log level and runtime
// environment. Production deployments log JSON so decision and guardrail
// events are machine-parsable; everything else gets readable colored text.
func NewLogger(logLevel, environment string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to info", logLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if environment == "production" {
		log.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	}

	return log
}
