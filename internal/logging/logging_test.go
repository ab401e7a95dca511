//
//
package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnonymousTalent/opsradar/internal/config"
	"github.com/AnonymousTalent/opsradar/internal/logging"
)

func TestNew_JSON(t *testing.T) {
	var out bytes.Buffer
	log, closer, err := logging.New(config.LogConfig{Level: "warn", Format: config.FormatJSON}, &out, nil)
	require.NoError(t, err)
	defer closer.Close()

	log.Info().Msg("hidden")
	log.Warn().Str("component", "hub").Int("sessions", 2).Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "hub", entry["component"])
	assert.Equal(t, "shown", entry["message"])
	assert.EqualValues(t, 2, entry["sessions"])
	assert.Contains(t, entry, "time")
}

func TestNew_ConsoleSplitsErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log, _, err := logging.New(config.LogConfig{Level: "debug", Format: config.FormatConsole}, &stdout, &stderr)
	require.NoError(t, err)

	log.Info().Msg("routine")
	log.Error().Msg("broken")

	assert.Contains(t, stdout.String(), "routine")
	assert.NotContains(t, stdout.String(), "broken")
	assert.Contains(t, stderr.String(), "broken")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "opsradar.log")
	var out bytes.Buffer
	log, closer, err := logging.New(config.LogConfig{Level: "info", Format: config.FormatJSON, File: path, MaxSizeMB: 1}, &out, nil)
	require.NoError(t, err)

	log.Info().Str("k", "v").Msg("persisted")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"persisted"`)
	assert.Contains(t, out.String(), "persisted")
}

func TestNew_Errors(t *testing.T) {
	_, _, err := logging.New(config.LogConfig{Level: "loud"}, nil, nil)
	assert.Error(t, err)
	_, _, err = logging.New(config.LogConfig{Level: "info", Format: "xml"}, nil, nil)
	assert.Error(t, err)
}

func TestLevelWriter_Filters(t *testing.T) {
	var buf bytes.Buffer
	w := logging.LevelWriter{Writer: &buf, Levels: []zerolog.Level{zerolog.ErrorLevel}}

	n, err := w.WriteLevel(zerolog.InfoLevel, []byte("info"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Empty(t, buf.String())

	_, _ = w.WriteLevel(zerolog.ErrorLevel, []byte("err"))
	assert.Equal(t, "err", buf.String())
}
