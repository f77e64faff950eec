package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewBuildsALogger(t *testing.T) {
	for level := uint8(0); level <= 5; level++ {
		logger, err := New(level)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}

func TestLevelForBounds(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFor(0))
	assert.Equal(t, zapcore.FatalLevel, levelFor(5))
	assert.Equal(t, zapcore.FatalLevel, levelFor(200))
}
