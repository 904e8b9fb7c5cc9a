package timeline

import "time"

const (
	todayLayout = "15:04"
	olderLayout = "02 Jan, 15:04"
)

// Formatter renders message timestamps in the display time zone: time only for
// messages from the current day, date and time otherwise.
type Formatter struct {
	loc *time.Location
	now func() time.Time
}

func NewFormatter(loc *time.Location, now func() time.Time) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Formatter{loc: loc, now: now}
}

// Label formats t relative to the current day in the display zone.
func (f Formatter) Label(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.In(f.loc)
	if sameDay(local, f.now().In(f.loc)) {
		return local.Format(todayLayout)
	}
	return local.Format(olderLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
