package core

import (
	"strconv"
	"time"
)

var windowSeconds = int64(WindowLength / time.Second)

// Window is the half-open interval [Start, Start+Length) in epoch seconds.
// It has no lifecycle of its own; it only exists inside counter keys.
type Window struct {
	Start  int64
	Length int64
}

// WindowAt returns the window containing now. Boundaries are aligned to the
// Unix epoch, not to any local calendar.
func WindowAt(now time.Time) Window {
	secs := now.Unix()
	start := secs / windowSeconds * windowSeconds
	if secs < 0 && secs%windowSeconds != 0 {
		start -= windowSeconds
	}
	return Window{Start: start, Length: windowSeconds}
}

// End returns the first epoch second after the window.
func (w Window) End() int64 {
	return w.Start + w.Length
}

// TTL returns the whole seconds left in the window at now. A counter armed
// with this TTL expires exactly at End.
func (w Window) TTL(now time.Time) time.Duration {
	remaining := w.Length - (now.Unix() - w.Start)
	return time.Duration(remaining) * time.Second
}

// Key builds the counter key for identity in this window. The identity is
// used verbatim.
func (w Window) Key(identity string) string {
	return KeyPrefix + identity + ":" + strconv.FormatInt(w.Start, 10)
}
