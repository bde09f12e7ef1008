package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoadState(t *testing.T) {
	tests := []struct {
		input   string
		want    LoadState
		wantErr bool
	}{
		{input: "commit", want: LoadStateCommit},
		{input: "domcontentloaded", want: LoadStateDOMContentLoaded},
		{input: "load", want: LoadStateLoad},
		{input: "networkidle", want: LoadStateNetworkIdle},
		{input: "idle", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLoadState(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectorString(t *testing.T) {
	sel := Selector{Strategy: StrategyXPath, Value: "html/body/div[2]/nav/button"}
	assert.Equal(t, "xpath=html/body/div[2]/nav/button", sel.String())
}

func TestClamp(t *testing.T) {
	t.Run("no deadline keeps timeout", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, Clamp(context.Background(), 5*time.Second))
	})

	t.Run("deadline shortens timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		got := Clamp(ctx, 5*time.Second)
		assert.LessOrEqual(t, got, 100*time.Millisecond)
		assert.Greater(t, got, time.Duration(0))
	})

	t.Run("expired deadline never yields zero", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
		defer cancel()
		assert.Equal(t, time.Millisecond, Clamp(ctx, 5*time.Second))
	})
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 5000.0, Millis(5*time.Second))
	assert.Equal(t, 1.5, Millis(1500*time.Microsecond))
}
