package tracking

import (
	"strconv"
	"strings"
	"time"
)

// Searchable is implemented by records that can be filtered client side
type Searchable interface {
	SearchText() []string
	When() time.Time
}

func (e InsulinEntry) SearchText() []string {
	out := []string{strconv.FormatFloat(e.Dosage, 'f', -1, 64), e.Notes}
	for _, v := range []*int{e.CBG, e.CBGPreMeal, e.CBGPostMeal} {
		if v != nil {
			out = append(out, strconv.Itoa(*v))
		}
	}
	return out
}
func (e InsulinEntry) When() time.Time { return e.Time }

func (m Meal) SearchText() []string {
	return []string{string(m.MealType), m.Dish, m.RiceType, m.Drinks, m.Notes}
}
func (m Meal) When() time.Time { return m.Time }

func (a Activity) SearchText() []string {
	return []string{a.ActivityType, a.Notes, strconv.Itoa(a.Duration)}
}
func (a Activity) When() time.Time { return a.StartTime }

func (s SleepEntry) SearchText() []string {
	return []string{strconv.FormatFloat(s.SleepHours, 'f', -1, 64), s.Notes}
}
func (s SleepEntry) When() time.Time { return s.RecordedAt }

func (s StressEntry) SearchText() []string {
	return []string{strconv.Itoa(s.StressScore), s.Notes}
}
func (s StressEntry) When() time.Time { return s.RecordedAt }

// Query narrows a list of fetched records
type Query struct {
	Text string
	Date *time.Time // calendar day in Loc
	Loc  *time.Location
}

// ParseQuery builds a Query from the q and date (YYYY-MM-DD) parameters
func ParseQuery(text, date string, loc *time.Location) (Query, error) {
	if loc == nil {
		loc = time.Local
	}
	q := Query{Text: strings.TrimSpace(text), Loc: loc}
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return Query{}, invalid("date must be YYYY-MM-DD")
		}
		q.Date = &d
	}
	return q, nil
}

func (q Query) match(r Searchable) bool {
	if q.Date != nil {
		loc := q.Loc
		if loc == nil {
			loc = time.Local
		}
		w := r.When().In(loc)
		y, m, d := q.Date.Date()
		wy, wm, wd := w.Date()
		if y != wy || m != wm || d != wd {
			return false
		}
	}
	if q.Text == "" {
		return true
	}
	needle := strings.ToLower(q.Text)
	for _, s := range r.SearchText() {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Filter keeps the records matching q, preserving order
func Filter[T Searchable](records []T, q Query) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if q.match(r) {
			out = append(out, r)
		}
	}
	return out
}
