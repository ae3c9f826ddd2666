package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CaptureBuffer collects formatted log lines so they can be attached to a
// product result and written to the output workbook's log sheet. It is
// installed as a logrus hook; Drain hands back the lines collected since the
// previous Drain.
type CaptureBuffer struct {
	mu    sync.Mutex
	lines []string
}

// NewCaptureBuffer creates an empty capture buffer
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{}
}

// Levels implements logrus.Hook: capture everything down to debug
func (b *CaptureBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (b *CaptureBuffer) Fire(entry *logrus.Entry) error {
	line := fmt.Sprintf("[%s] [%s] %s",
		entry.Time.Format("02.01.06 | 15:04"),
		entry.Level.String(),
		entry.Message)

	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
	return nil
}

// Append records a line directly, bypassing logrus. Used for lines that
// belong in the workbook but not in the service log.
func (b *CaptureBuffer) Append(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("02.01.06 | 15:04"), fmt.Sprintf(format, args...))
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

// Lines returns a copy of everything captured so far
func (b *CaptureBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// Drain returns the captured lines and resets the buffer
func (b *CaptureBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.lines
	b.lines = nil
	return out
}
