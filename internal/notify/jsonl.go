package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLSink writes one envelope per line and flushes after every line.
type JSONLSink struct {
	mu     sync.Mutex
	closer io.Closer
	writer *bufio.Writer
	now    func() time.Time
}

// NewJSONLSink writes to w. w is not closed by Close.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{writer: bufio.NewWriter(w), now: time.Now}
}

// OpenJSONLFile appends to the file at path, creating its directory.
func OpenJSONLFile(path string) (*JSONLSink, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	sink := NewJSONLSink(file)
	sink.closer = file
	return sink, nil
}

func (s *JSONLSink) Emit(_ context.Context, typ string, v any) error {
	line, err := newEnvelope(typ, v, s.now())
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		if s.closer != nil {
			s.closer.Close()
		}
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
