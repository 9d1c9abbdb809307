package vm

import (
	"io"
	"sync"
)

// ---------------------------------------------------------------------------
// Output sinks
// ---------------------------------------------------------------------------

// Sink receives the lines emitted by say, one call per statement.
type Sink interface {
	WriteLine(line string) error
}

// WriterSink writes each line followed by a newline to an io.Writer.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) WriteLine(line string) error {
	_, err := io.WriteString(s.W, line+"\n")
	return err
}

// CaptureSink keeps every line in memory.
type CaptureSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *CaptureSink) WriteLine(line string) error {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	return nil
}

// Lines returns a copy of the captured lines.
func (c *CaptureSink) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Reset discards captured lines.
func (c *CaptureSink) Reset() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

// MultiSink duplicates each line to every sink. All sinks are written even
// if one fails; the first error is returned.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) WriteLine(line string) error {
	var first error
	for _, s := range m {
		if err := s.WriteLine(line); err != nil && first == nil {
			first = err
		}
	}
	return first
}
