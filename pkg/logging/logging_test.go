package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, log.DebugLevel)
	l.WithPrefix("build").Info("baked", "island", "north", "shapes", 3)
	out := buf.String()
	assert.Contains(t, out, "baked")
	assert.Contains(t, out, "island=north")
	assert.Contains(t, out, "shapes=3")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, log.WarnLevel)
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, log.InfoLevel, lvl)

	lvl, err = ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestDefaultsAreShared(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.NotNil(t, OrDiscard(nil))
	l := Discard()
	assert.Same(t, l, OrDiscard(l))
}
