package settlement

import (
	"time"

	"github.com/pkg/errors"
)

const dateLayout = "2006-01-02"

// Period is an inclusive range of calendar dates.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ParsePeriod reads two YYYY-MM-DD dates.
func ParsePeriod(from, to string) (Period, error) {
	f, err := time.Parse(dateLayout, from)
	if err != nil {
		return Period{}, errors.Wrap(err, "parse from")
	}
	t, err := time.Parse(dateLayout, to)
	if err != nil {
		return Period{}, errors.Wrap(err, "parse to")
	}
	if t.Before(f) {
		return Period{}, errors.New("period ends before it starts")
	}
	return Period{From: f, To: t}, nil
}

// Month returns the period covering the calendar month containing t.
func Month(t time.Time) Period {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{From: first, To: first.AddDate(0, 1, -1)}
}

// Contains compares calendar dates only, ignoring the time of day.
func (p Period) Contains(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(dateOf(p.From)) && !d.After(dateOf(p.To))
}

func (p Period) String() string {
	return p.From.Format(dateLayout) + ".." + p.To.Format(dateLayout)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
