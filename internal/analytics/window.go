package analytics

import (
	"strings"
	"time"
)

// Window is a named chart range ending today.
type Window string

const (
	Window7D Window = "7D"
	Window1M Window = "1M"
	Window3M Window = "3M"
	Window6M Window = "6M"
	Window1Y Window = "1Y"
)

// DefaultWindow is used when a token is missing or unknown.
const DefaultWindow = Window7D

// Windows lists every supported window, shortest first.
var Windows = []Window{Window7D, Window1M, Window3M, Window6M, Window1Y}

// ParseWindow maps a token to a Window. Unknown tokens fall back to
// DefaultWindow and report ok=false.
func ParseWindow(token string) (Window, bool) {
	switch w := Window(strings.ToUpper(strings.TrimSpace(token))); w {
	case Window7D, Window1M, Window3M, Window6M, Window1Y:
		return w, true
	default:
		return DefaultWindow, false
	}
}

// Range returns the inclusive [start, end] calendar range of the window, with
// end being today.
func (w Window) Range(today time.Time) (time.Time, time.Time) {
	end := Day(today)
	switch w {
	case Window1M:
		return end.AddDate(0, -1, 0), end
	case Window3M:
		return end.AddDate(0, -3, 0), end
	case Window6M:
		return end.AddDate(0, -6, 0), end
	case Window1Y:
		return end.AddDate(-1, 0, 0), end
	default:
		return end.AddDate(0, 0, -7), end
	}
}

func (w Window) String() string { return string(w) }
