package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// StorageDateLayout is the dd/MM/yyyy layout used in storage tables and user input.
	StorageDateLayout = "02/01/2006"
	// DisplayDateLayout is the long display form, e.g. "05 March 2024".
	DisplayDateLayout = "02 January 2006"
	// YearMonthLayout is the yyyy-MM layout of card bill months.
	YearMonthLayout = "2006-01"
)

// Date is a calendar day, held as midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day. Out of range values are
// normalized the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a dd/MM/yyyy date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(StorageDateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%q: %w", s, ErrInvalidDate)
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrValidation)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// IsEmpty returns true if the date is zero (used for optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// OnOrBefore reports whether d is the same day as o or earlier.
func (d Date) OnOrBefore(o Date) bool {
	return !d.Time.After(o.Time)
}

// YearMonth returns the month d falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

// AddMonthsClamped moves d by n calendar months keeping anchorDay as the day
// of month, clamped to the length of the target month. Jan 31 + 1 month with
// anchor 31 is Feb 28 (or 29), and Feb 28 + 1 month with anchor 31 is Mar 31.
func (d Date) AddMonthsClamped(n int, anchorDay int) Date {
	first := time.Date(d.Year(), d.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := anchorDay
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(first.Year(), first.Month(), day)
}

// StorageString formats d as dd/MM/yyyy.
func (d Date) StorageString() string {
	return d.Format(StorageDateLayout)
}

// Display formats d in the long display form.
func (d Date) Display() string {
	return d.Format(DisplayDateLayout)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// YearMonth identifies a calendar month, used as the billing period of a card.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth accepts yyyy-MM and MM/yyyy.
func ParseYearMonth(s string) (YearMonth, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{YearMonthLayout, "01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return YearMonth{Year: t.Year(), Month: t.Month()}, nil
		}
	}
	return YearMonth{}, fmt.Errorf("%w: invalid month %q, expected yyyy-mm", ErrValidation, s)
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

// First returns the first day of the month.
func (ym YearMonth) First() Date { return NewDate(ym.Year, ym.Month, 1) }

// Contains reports whether d falls in ym.
func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && d.Month() == ym.Month
}

func (ym YearMonth) String() string {
	if ym.IsZero() {
		return ""
	}
	return ym.First().Format(YearMonthLayout)
}

func (ym YearMonth) Validate() error {
	if ym.Month < time.January || ym.Month > time.December {
		return ErrInvalidMonth
	}
	if ym.Year < 1 {
		return errors.Join(ErrValidation, fmt.Errorf("invalid year %d", ym.Year))
	}
	return nil
}

// Clock supplies the current day. Reconciliation samples it on every call.
type Clock interface {
	Today() Date
}

// SystemClock reads the wall clock in the local time zone.
type SystemClock struct{}

func (SystemClock) Today() Date { return DateOf(time.Now()) }

// FixedClock always returns the same day.
type FixedClock struct {
	Day Date
}

func (c FixedClock) Today() Date { return c.Day }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() Date

func (f ClockFunc) Today() Date { return f() }
