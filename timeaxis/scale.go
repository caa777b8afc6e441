/*
Copyright © 2019 the spacetime authors.
This file is part of spacetime.

spacetime is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

spacetime is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with spacetime.  If not, see <http://www.gnu.org/licenses/>.
*/

package timeaxis

import (
	"fmt"
	"strings"
	"time"
)

// Scale is a calendar resolution.
type Scale string

// Calendar resolutions.
const (
	Day   Scale = "day"
	Month Scale = "month"
	Year  Scale = "year"
)

// ParseScale converts s into a Scale. It is not case sensitive.
func ParseScale(s string) (Scale, error) {
	switch Scale(strings.ToLower(strings.TrimSpace(s))) {
	case Day:
		return Day, nil
	case Month:
		return Month, nil
	case Year:
		return Year, nil
	}
	return "", fmt.Errorf("timeaxis: invalid scale %q; valid scales are day, month and year", s)
}

// Element returns the calendar element of t at this scale: the day of
// the month, the month number, or the year.
func (s Scale) Element(t time.Time) int {
	switch s {
	case Day:
		return t.Day()
	case Month:
		return int(t.Month())
	case Year:
		return t.Year()
	}
	panic(fmt.Errorf("timeaxis: invalid scale %q", s))
}

// Start returns the beginning of the period containing t.
func (s Scale) Start(t time.Time) time.Time {
	switch s {
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case Year:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	}
	panic(fmt.Errorf("timeaxis: invalid scale %q", s))
}

// Next returns the beginning of the period after the one containing t.
func (s Scale) Next(t time.Time) time.Time {
	start := s.Start(t)
	switch s {
	case Day:
		return start.AddDate(0, 0, 1)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(1, 0, 0)
	}
}

// Label returns the label of the period containing t: its last day.
func (s Scale) Label(t time.Time) time.Time {
	return s.Next(t).AddDate(0, 0, -1)
}
