package utils

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

func IsValidEmail(email string) bool {
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

// ConvertToDate truncates a timestamp to midnight in the given timezone
// (defaulting to UTC when the timezone is empty or unknown).
func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	location := time.UTC
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, err
		}
		location = loc
	}
	local := t.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location), nil
}

// DaysBetween returns whole days from a to b, date-truncated in the given
// timezone. Used by the return-window check.
func DaysBetween(a, b time.Time, timezone string) (int, error) {
	da, err := ConvertToDate(a, timezone)
	if err != nil {
		return 0, err
	}
	db, err := ConvertToDate(b, timezone)
	if err != nil {
		return 0, err
	}
	return int(db.Sub(da).Hours() / 24), nil
}

// RoundingEpsilon tolerates drift from division-derived unit costs when
// comparing monetary sums.
var RoundingEpsilon = decimal.New(1, -4)

func DecimalEqualWithin(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(RoundingEpsilon)
}
