package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevelParsing(t *testing.T) {
	log := NewLogger("DEBUG", "development")
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	log = NewLogger("nonsense", "development")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewLoggerProductionUsesJSON(t *testing.T) {
	log := NewLogger("info", "production")
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}
