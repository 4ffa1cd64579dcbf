package scraper

import (
	"bytes"
	"fmt"
	"sync"
)

type Logger interface {
	Printf(format string, a ...interface{})
}

// BufferedLogger collects log output in memory. It is safe for concurrent use.
type BufferedLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (buflog *BufferedLogger) Printf(format string, a ...interface{}) {
	buflog.mu.Lock()
	defer buflog.mu.Unlock()
	fmt.Fprintf(&buflog.buffer, format, a...)
	buflog.buffer.WriteByte('\n')
}

func (buflog *BufferedLogger) String() string {
	buflog.mu.Lock()
	defer buflog.mu.Unlock()
	return buflog.buffer.String()
}

// DummyLogger discards everything.
type DummyLogger struct{}

func (logger DummyLogger) Printf(format string, a ...interface{}) {}
