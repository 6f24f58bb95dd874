package domain

import "time"

const dateLayout = "2006-01-02"

// DayWindow — полуинтервал [Start, End) календарного дня.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// WindowFor возвращает окно дня, которому принадлежит t, в зоне t.
func WindowFor(t time.Time) DayWindow {
	start := StartOfDay(t)
	return DayWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

// Contains проверяет попадание момента в окно.
func (w DayWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Today возвращает календарную дату окна.
func (w DayWindow) Today() time.Time {
	return w.Start
}

// Yesterday возвращает предыдущую календарную дату.
func (w DayWindow) Yesterday() time.Time {
	return w.Start.AddDate(0, 0, -1)
}

// StartOfDay обрезает время до полуночи в зоне t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey возвращает дату в формате YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDateKey разбирает YYYY-MM-DD в указанной зоне.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(dateLayout, key, loc)
}
