// Package status is the transient "saved" indicator shown after an edit.
package status

import (
	"fmt"
	"io"
	"sync"
)

// Notifier receives fire-and-forget acknowledgements. Implementations must
// not block.
type Notifier interface {
	Flash(message string)
}

// Nop ignores every flash.
type Nop struct{}

// Flash implements Notifier.
func (Nop) Flash(string) {}

// Func adapts a function to Notifier.
type Func func(message string)

// Flash implements Notifier.
func (f Func) Flash(message string) { f(message) }

// Writer prints each flash as one line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Notifier that prints to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Flash implements Notifier.
func (n *Writer) Flash(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, "✓ %s\n", message)
}

// OrNop returns n, or Nop when n is nil.
func OrNop(n Notifier) Notifier {
	if n == nil {
		return Nop{}
	}
	return n
}
