package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_ReturnsTimeoutSentinelOnExpiredContext(t *testing.T) {
	b := New("http://localhost:11434")
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(5 * time.Millisecond)

	resp := b.Generate(ctx, "llama3.2:1b", "hello", Options{})
	assert.True(t, isSentinel(resp))
	assert.Contains(t, resp, "TIMEOUT")
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, isSentinel("[ERROR] boom"))
	assert.True(t, isSentinel("[TIMEOUT_5s]"))
	assert.False(t, isSentinel("a real answer"))
	assert.False(t, isSentinel(""))
}

func TestBuildCallOptions_DefaultsTemperature(t *testing.T) {
	opts := buildCallOptions(Options{})
	assert.NotEmpty(t, opts)
}
