package reading

import (
	"math"
	"time"

	"sensetech/pkg/store"
)

// DayEntry is one day of an activity series.
type DayEntry struct {
	Date    time.Time `json:"date"`
	Label   string    `json:"label"`
	Minutes int       `json:"minutes"`
}

// Aggregator records elapsed-time samples and answers per-day series
// queries over them.
type Aggregator struct {
	store store.Store
	now   func() time.Time
}

// NewAggregator builds an activity aggregator over the store.
func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s, now: time.Now}
}

// PeriodDays maps a period name onto its day-count window. "1week" is an
// alias of "7days".
func PeriodDays(period string) (int, error) {
	switch period {
	case "7days", "1week":
		return 7, nil
	case "1month":
		return 30, nil
	}
	return 0, ErrInvalidPeriod
}

// RecordSample adds minutes to the user's lifetime total and to today's
// daily row. The calendar date is the server's, not the client's.
func (a *Aggregator) RecordSample(userID string, minutes int) error {
	if minutes <= 0 {
		return ErrInvalidMinutes
	}
	now := a.now()
	if err := a.store.AddReadingMinutes(userID, minutes, now); err != nil {
		return err
	}
	return a.store.AddDailyActivity(userID, dateOnly(now), minutes)
}

// DailySeries returns exactly one entry per calendar day in the window,
// oldest first, ending today, zero-filled. When the user has no daily
// rows at all but a nonzero lifetime total, minutes are approximated
// from reading-progress session timestamps.
func (a *Aggregator) DailySeries(userID, period string) ([]DayEntry, error) {
	days, err := PeriodDays(period)
	if err != nil {
		return nil, err
	}
	today := dateOnly(a.now())
	start := today.AddDate(0, 0, -(days - 1))

	rows, err := a.store.ListDailyActivity(userID, time.Time{}, today)
	if err != nil {
		return nil, err
	}
	minutesByDay := make(map[string]int, len(rows))
	for _, row := range rows {
		minutesByDay[dayKey(row.Date)] += row.Minutes
	}
	if len(rows) == 0 {
		approx, err := a.approximateFromSessions(userID, start, today)
		if err != nil {
			return nil, err
		}
		minutesByDay = approx
	}

	series := make([]DayEntry, 0, days)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		series = append(series, DayEntry{
			Date:    d,
			Label:   a.FormatLabel(d, period),
			Minutes: minutesByDay[dayKey(d)],
		})
	}
	return series, nil
}

// approximateFromSessions reconstructs a plausible per-day distribution
// for legacy users whose lifetime total predates daily tracking. Each
// progress row's last-read timestamp counts as one session; the window's
// share of the lifetime total is spread evenly across in-window sessions,
// rounded to whole minutes. Best effort, precision is not guaranteed.
func (a *Aggregator) approximateFromSessions(userID string, start, end time.Time) (map[string]int, error) {
	out := make(map[string]int)
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if !ok || user.TotalMinutes <= 0 {
		return out, nil
	}
	progress, err := a.store.ListProgressByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(progress) == 0 {
		return out, nil
	}
	sessionsByDay := make(map[string]int)
	for _, p := range progress {
		sessionsByDay[dayKey(dateOnly(p.LastRead))]++
	}
	inWindow := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		inWindow += sessionsByDay[dayKey(d)]
	}
	if inWindow == 0 {
		return out, nil
	}
	allSessions := len(progress)
	share := int(math.Round(float64(user.TotalMinutes) * float64(inWindow) / float64(allSessions)))
	perSession := int(math.Round(float64(share) / float64(inWindow)))
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if n := sessionsByDay[dayKey(d)]; n > 0 {
			out[dayKey(d)] = n * perSession
		}
	}
	return out, nil
}

// FormatLabel renders the presentation label for one series day:
// "Today"/"Yesterday" for the two most recent days, day+month for the
// 1-month period, weekday abbreviation otherwise.
func (a *Aggregator) FormatLabel(date time.Time, period string) string {
	today := dateOnly(a.now())
	switch {
	case sameDay(date, today):
		return "Today"
	case sameDay(date, today.AddDate(0, 0, -1)):
		return "Yesterday"
	case period == "1month":
		return date.Format("2 Jan")
	default:
		return date.Format("Mon")
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func sameDay(a, b time.Time) bool {
	return dayKey(a) == dayKey(b)
}
