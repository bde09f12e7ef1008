package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestTracerProvider_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider(Options{Version: "1.2.3", Output: &buf})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "scenario login")
	span.SetAttributes(attribute.String("flowcheck.verdict", "pass"))
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "scenario login")
	assert.Contains(t, out, "flowcheck.verdict")
	assert.Contains(t, out, "1.2.3")
}

func TestNewFileTracerProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	tp, err := NewFileTracerProvider(path, Options{})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "step click")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "step click")
}

func TestNewFileTracerProvider_BadPath(t *testing.T) {
	_, err := NewFileTracerProvider(filepath.Join(t.TempDir(), "missing", "spans.json"), Options{})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	_, span := Disabled().Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.False(t, span.IsRecording())
}
