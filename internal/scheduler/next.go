package scheduler

import "time"

// Next returns the next fire instant: the smallest timestamp >= now matching
// the schedule in loc, strictly greater than the persisted marker. A zero
// marker means the task has never fired.
//
// For interval schedules the result is marker+interval, which may lie in the
// past; the caller treats any instant <= now as due. A zero marker fires
// immediately.
func (s Schedule) Next(now time.Time, loc *time.Location, marker time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	switch s.Kind {
	case KindDaily:
		return nextWallClock(now, marker, loc, s.At, nil)
	case KindWeekly:
		wd := s.Weekday
		return nextWallClock(now, marker, loc, s.At, &wd)
	case KindInterval:
		if marker.IsZero() {
			return now
		}
		return marker.Add(s.Every)
	case KindCron:
		ref := now
		if marker.After(ref) {
			ref = marker
		}
		return s.cronSched.Next(ref.In(loc))
	default:
		return time.Time{}
	}
}

// nextWallClock walks day by day from now until it finds an instant at the
// requested wall-clock time (and weekday, if given) that is >= now and
// strictly after the marker. time.Date normalizes nonexistent wall-clock
// times created by DST transitions, so a fire time inside a spring-forward
// gap lands on the shifted instant instead of being skipped.
func nextWallClock(now, marker time.Time, loc *time.Location, at TimeOfDay, weekday *time.Weekday) time.Time {
	day := now
	for i := 0; i < 380; i++ {
		cand := time.Date(day.Year(), day.Month(), day.Day(), at.Hour, at.Minute, 0, 0, loc)
		ok := !cand.Before(now) && cand.After(marker)
		if ok && weekday != nil && cand.Weekday() != *weekday {
			ok = false
		}
		if ok {
			return cand
		}
		day = day.AddDate(0, 0, 1)
	}
	// Unreachable for any sane marker; return a far-future sentinel.
	return now.AddDate(2, 0, 0)
}
