package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", NewDefaultConfig(), false},
		{"json format", Config{Level: "debug", Format: "json"}, false},
		{"bad level", Config{Level: "loud", Format: "console"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	stderrOverride = &buf
	defer func() { stderrOverride = nil }()

	log, err := NewLogger(Config{Level: "info", Format: "json"})
	require.NoError(t, err)

	log.Named("pipeline").Info("cycle complete", zap.Int("intents", 2))
	_ = log.Sync()

	out := buf.String()
	assert.Contains(t, out, `"cycle complete"`)
	assert.Contains(t, out, `"intents":2`)
	assert.Contains(t, out, "pipeline")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	stderrOverride = &buf
	defer func() { stderrOverride = nil }()

	log, err := NewLogger(Config{Level: "warn", Format: "console"})
	require.NoError(t, err)

	log.Info("should be dropped")
	log.Warn("should appear")
	_ = log.Sync()

	out := buf.String()
	assert.False(t, strings.Contains(out, "should be dropped"))
	assert.Contains(t, out, "should appear")
}
