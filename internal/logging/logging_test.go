package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInit_ValidLevel(t *testing.T) {
	Init(Config{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestInit_InvalidLevelDefaultsToInfo(t *testing.T) {
	Init(Config{Level: "not-a-level"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInit_JSONOutputBuildsLogger(t *testing.T) {
	Init(Config{Level: "info", JSONOutput: true})
	assert.NotNil(t, Logger)
}

func TestWithComponent_TagsComponentField(t *testing.T) {
	Init(Config{Level: "info", JSONOutput: true})
	var buf bytes.Buffer
	Logger = zerolog.New(&buf)
	child := WithComponent("store")
	assert.NotNil(t, child)
	child.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"store"`)
}
