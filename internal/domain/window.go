package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeWindow is a standard reporting window for realized PnL.
type TimeWindow string

const (
	Window24h TimeWindow = "24h"
	Window7d  TimeWindow = "7d"
	Window30d TimeWindow = "30d"
	WindowAll TimeWindow = "all"
)

// ParseWindow normalizes a window name, accepting common aliases.
func ParseWindow(s string) (TimeWindow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "24h", "1d", "day":
		return Window24h, nil
	case "7d", "1w", "week":
		return Window7d, nil
	case "30d", "1m", "month":
		return Window30d, nil
	case "all", "":
		return WindowAll, nil
	default:
		return "", errors.Errorf("unknown time window %q", s)
	}
}

// Duration returns the window length. The second result is false for the
// unbounded window.
func (w TimeWindow) Duration() (time.Duration, bool) {
	switch w {
	case Window24h:
		return 24 * time.Hour, true
	case Window7d:
		return 7 * 24 * time.Hour, true
	case Window30d:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
