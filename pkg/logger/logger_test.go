package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONConServicio(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(Config{Env: "production", Level: "info", Service: "order-service"}, &buf)

	l.Debug().Msg("no debe aparecer")
	cl := l.Component("order_saga")
	cl.Info().Str("order_id", "o1").Msg("orden creada")

	var ev map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev))
	assert.Equal(t, "order-service", ev["service"])
	assert.Equal(t, "order_saga", ev["component"])
	assert.Equal(t, "o1", ev["order_id"])
	assert.Equal(t, "info", ev["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "info", parseLevel("").String())
	assert.Equal(t, "info", parseLevel("ruidoso").String())
}
