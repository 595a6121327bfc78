package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerEmitsComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := &ZerologLogger{
		log: zerolog.New(&buf).With().Str("component", "test").Logger(),
	}

	l.Infof("cycle done in %s", "2s")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test", line["component"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "cycle done in 2s", line["message"])
}

func TestLoggerInterfaceCompliance(t *testing.T) {
	var _ Logger = NopLogger{}
	var _ Logger = (*ZerologLogger)(nil)
}
