package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBufferKeepsLastBytes(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("hello "))
	_, _ = b.Write([]byte("world"))

	assert.Equal(t, "world", b.String())
}

func TestClassifyExit(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, classifyExit(nil).Outcome)

	res := classifyExit(assert.AnError)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, ExitCodeUnknown, res.ExitCode)
}
