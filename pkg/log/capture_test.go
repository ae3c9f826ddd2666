package log

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureBufferCollectsHookedEntries(t *testing.T) {
	buf := NewCaptureBuffer()
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(io.Discard)
	logger.AddHook(buf)

	logger.Info("first message")
	logger.Errorf("second %s", "message")

	lines := buf.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[info] first message")
	assert.Contains(t, lines[1], "[error] second message")
}

func TestCaptureBufferAppend(t *testing.T) {
	buf := NewCaptureBuffer()
	buf.Append("workbook line %d", 7)

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "workbook line 7")
}

func TestCaptureBufferDrainResets(t *testing.T) {
	buf := NewCaptureBuffer()
	buf.Append("one")
	buf.Append("two")

	drained := buf.Drain()
	assert.Len(t, drained, 2)
	assert.Empty(t, buf.Lines())
	assert.Empty(t, buf.Drain())
}
