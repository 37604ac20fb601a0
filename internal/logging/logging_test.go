package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/eventsound/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.WarnLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" INFO ", zerolog.InfoLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, zerolog.InfoLevel, true)

	log.Debug().Msg("hidden")
	log.Info().Uint32("id", 3).Msg("played")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "played", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.InDelta(t, 3, entry["id"], 0)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "eventsound.log")

	log, closeFn, err := New(config.LogConfig{Level: "info", File: path, JSON: true})
	require.NoError(t, err)
	log.Info().Msg("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, closeFn, err := New(config.LogConfig{Level: "shouty"})
	assert.Error(t, err)
	assert.NoError(t, closeFn())
}
