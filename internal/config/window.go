package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bufferbridge/internal/errs"
)

// TimeWindow is a validated, resolved entry from a scheduler's
// time_windows list. Start and End are encoded as hour*100+minute
// (e.g. 05:30 -> 530), matching the source's short-integer encoding;
// both endpoints are inclusive when matched against the wall clock.
type TimeWindow struct {
	ID                string
	Start             int
	End               int
	Enabled           bool
	RateLimiterType   string
	RateLimiterConfig string
}

// Contains reports whether nowHHMM (hour*100+minute) falls within the
// window, both ends inclusive.
func (w TimeWindow) Contains(nowHHMM int) bool {
	return w.Enabled && w.Start <= nowHHMM && nowHHMM <= w.End
}

// parseClock parses a strict "HH:MM" string into hour*100+minute.
func parseClock(field, s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, errs.Config(field, fmt.Errorf("expected HH:MM, got %q", s))
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 2 || parts[0][0] < '0' || parts[0][0] > '9' || hh < 0 || hh > 23 {
		return 0, errs.Config(field, fmt.Errorf("invalid hour in %q", s))
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 || parts[1][0] < '0' || parts[1][0] > '9' || mm < 0 || mm > 59 {
		return 0, errs.Config(field, fmt.Errorf("invalid minute in %q", s))
	}
	return hh*100 + mm, nil
}

// resolveWindows validates and sorts a set of raw window entries,
// enforcing the invariants from §3: start < end, no duplicate ids, no
// overlap or adjacency between consecutive windows once sorted.
func resolveWindows(raw []rawTimeWindow) ([]TimeWindow, error) {
	windows := make([]TimeWindow, 0, len(raw))
	seenIDs := make(map[string]bool, len(raw))

	for i, rw := range raw {
		id := strings.TrimSpace(rw.ID)
		if id == "" {
			return nil, errs.Config("time_windows", fmt.Errorf("window %d: id is required", i))
		}
		if seenIDs[id] {
			return nil, errs.Config("time_windows", fmt.Errorf("duplicate window id %q", id))
		}
		seenIDs[id] = true

		if rw.Start == "" || rw.End == "" {
			return nil, errs.Config("time_windows", fmt.Errorf("window %q: start and end are required", id))
		}
		start, err := parseClock("time_windows[].start", rw.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseClock("time_windows[].end", rw.End)
		if err != nil {
			return nil, err
		}
		if start >= end {
			return nil, errs.Config("time_windows", fmt.Errorf("window %q: start (%s) must be before end (%s)", id, rw.Start, rw.End))
		}

		limiterType := rw.RateLimiterType
		if limiterType == "" {
			limiterType = "local"
		}

		windows = append(windows, TimeWindow{
			ID:                id,
			Start:             start,
			End:               end,
			Enabled:           rw.Enable,
			RateLimiterType:   limiterType,
			RateLimiterConfig: rw.RateLimiterConfig,
		})
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].Start < windows[j].Start })

	for i := 1; i < len(windows); i++ {
		prev, next := windows[i-1], windows[i]
		if next.Start <= prev.End {
			return nil, errs.Config("time_windows", fmt.Errorf("window %q overlaps or is adjacent to %q", next.ID, prev.ID))
		}
	}

	return windows, nil
}
