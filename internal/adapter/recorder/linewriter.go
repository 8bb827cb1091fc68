package recorder

import (
	"bytes"
)

// lineWriter turns a byte stream into lines, splitting on both '\n' and '\r'
// since ffmpeg redraws its progress line with carriage returns.
type lineWriter struct {
	stream string
	emit   func(stream, line string)
	buf    []byte
}

func newLineWriter(stream string, emit func(stream, line string)) *lineWriter {
	return &lineWriter{stream: stream, emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.send(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.send(w.buf)
	w.buf = nil
}

func (w *lineWriter) send(b []byte) {
	line := string(bytes.TrimSpace(b))
	if line == "" || w.emit == nil {
		return
	}
	w.emit(w.stream, line)
}
