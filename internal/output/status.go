package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// StatusLine is a single-line error area. A new error replaces the previous
// one; nothing is queued and nothing expires on its own.
type StatusLine struct {
	mu  sync.Mutex
	msg string
}

// Set replaces the current message with err's. A nil err clears it.
func (s *StatusLine) Set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.msg = ""
		return
	}
	s.msg = firstLine(err.Error())
}

// Clear removes the current message.
func (s *StatusLine) Clear() {
	s.Set(nil)
}

// Message returns the current message, or "".
func (s *StatusLine) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msg
}

// Render writes "error: <message>" when a message is set.
func (s *StatusLine) Render(w io.Writer, st *Styles) {
	if msg := s.Message(); msg != "" {
		fmt.Fprintln(w, st.err("error: "+msg))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
