package coupling

import (
	"fmt"
	"time"
)

// TimeAxis is a time coordinate given either as absolute timestamps or as
// durations elapsed since the start of a simulation. Elapsed is used only
// when Stamps is nil.
type TimeAxis struct {
	Stamps  []time.Time
	Elapsed []time.Duration
}

// Len returns the number of entries on the axis.
func (a TimeAxis) Len() int {
	if a.Absolute() {
		return len(a.Stamps)
	}
	return len(a.Elapsed)
}

// Absolute reports whether the axis holds timestamps.
func (a TimeAxis) Absolute() bool {
	return a.Stamps != nil || a.Elapsed == nil
}

// instant maps entry i onto a time.Time so that both kinds of axis compare
// the same way. Elapsed entries are offsets from the zero time.
func (a TimeAxis) instant(i int) time.Time {
	if a.Absolute() {
		return a.Stamps[i]
	}
	return time.Time{}.Add(a.Elapsed[i])
}

func (a TimeAxis) take(idx []int) TimeAxis {
	if a.Absolute() {
		s := make([]time.Time, len(idx))
		for k, i := range idx {
			s[k] = a.Stamps[i]
		}
		return TimeAxis{Stamps: s}
	}
	e := make([]time.Duration, len(idx))
	for k, i := range idx {
		e[k] = a.Elapsed[i]
	}
	return TimeAxis{Elapsed: e}
}

// Window selects the part of the data that is written and the instant that
// becomes t = 0. Zero fields are unset.
type Window struct {
	// Ref is the reference date. When unset, times are written as they are
	// (elapsed seconds, or seconds since the Unix epoch for timestamps),
	// except for boundary coupling, which starts at the first retained
	// timestamp.
	Ref time.Time
	// From and To bound the retained timestamps, inclusive. They default to
	// the first and last timestamp of the data.
	From time.Time
	To   time.Time
}

func (w Window) check(a TimeAxis) error {
	if a.Absolute() {
		return nil
	}
	if !w.Ref.IsZero() || !w.From.IsZero() || !w.To.IsZero() {
		return fmt.Errorf("%w: reference and window dates need a timestamp index, got elapsed times", ErrInvalidInput)
	}
	return nil
}

// selectRows returns the rows of a inside the window and the resolved start
// instant.
func (w Window) selectRows(a TimeAxis) ([]int, time.Time, error) {
	if err := w.check(a); err != nil {
		return nil, time.Time{}, err
	}
	n := a.Len()
	if n == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: no data", ErrInvalidInput)
	}
	first, last := a.instant(0), a.instant(0)
	for i := 1; i < n; i++ {
		t := a.instant(i)
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	from, to := w.From, w.To
	if from.IsZero() {
		from = first
	}
	if to.IsZero() {
		to = last
	}
	var rows []int
	for i := 0; i < n; i++ {
		t := a.instant(i)
		if t.Before(from) || t.After(to) {
			continue
		}
		rows = append(rows, i)
	}
	if len(rows) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: no data between %s and %s", ErrInvalidInput,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return rows, from, nil
}

// Seconds converts a time axis into a numeric index:
//   - timestamps with a reference date: signed seconds since ref;
//   - elapsed durations without a reference date: the durations in seconds;
//   - timestamps without a reference date: seconds since the Unix epoch.
func Seconds(a TimeAxis, ref time.Time) ([]float64, error) {
	out := make([]float64, a.Len())
	switch {
	case !a.Absolute() && !ref.IsZero():
		return nil, fmt.Errorf("%w: reference date given for an elapsed time index", ErrInvalidInput)
	case !a.Absolute():
		for i, d := range a.Elapsed {
			out[i] = d.Seconds()
		}
	case !ref.IsZero():
		for i, t := range a.Stamps {
			out[i] = t.Sub(ref).Seconds()
		}
	default:
		for i, t := range a.Stamps {
			out[i] = float64(t.Unix()) + float64(t.Nanosecond())/1e9
		}
	}
	return out, nil
}
