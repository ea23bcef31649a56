// Package normalize coerces loosely typed spreadsheet cell values into the
// typed values stored on vehicles and service records. Every function degrades
// to a safe default instead of failing, so one bad cell never aborts an import.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ukydev/fleet-tracker/internal/models"
)

// serialEpochOffset is the number of days between the spreadsheet epoch
// (1899-12-30) and the Unix epoch.
const serialEpochOffset = 25569

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Layouts tried, in order, for date strings that are not already ISO dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1-2-06",
	"01/02/06",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

// ParseIssue describes why a cell could not be coerced.
type ParseIssue struct {
	Input  string
	Reason string
}

func (p *ParseIssue) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", p.Input, p.Reason)
}

// Coerced is the result of a coercion: either a value or the issue that
// prevented one.
type Coerced[T any] struct {
	Value T
	Issue *ParseIssue
}

// Ok reports whether the coercion succeeded.
func (c Coerced[T]) Ok() bool { return c.Issue == nil }

// Or returns the value, or def when the coercion failed.
func (c Coerced[T]) Or(def T) T {
	if c.Issue != nil {
		return def
	}
	return c.Value
}

// ToStringSafe renders any cell value as a trimmed string; nil becomes "".
func ToStringSafe(v any) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Upper is ToStringSafe uppercased.
func Upper(v any) string {
	return strings.ToUpper(ToStringSafe(v))
}

// ParseNumber parses a cell as a number, stripping thousands separators.
func ParseNumber(v any) Coerced[float64] {
	var f float64
	switch n := v.(type) {
	case nil:
		return Coerced[float64]{Issue: &ParseIssue{Reason: "empty"}}
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	default:
		s := strings.ReplaceAll(ToStringSafe(v), ",", "")
		if s == "" {
			return Coerced[float64]{Issue: &ParseIssue{Reason: "empty"}}
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Coerced[float64]{Issue: &ParseIssue{Input: s, Reason: "not a number"}}
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Coerced[float64]{Issue: &ParseIssue{Input: ToStringSafe(v), Reason: "not finite"}}
	}
	return Coerced[float64]{Value: f}
}

// ToNumberSafe returns the numeric value of a cell, or 0. It never returns NaN.
func ToNumberSafe(v any) float64 {
	return ParseNumber(v).Or(0)
}

// ParseDate converts a cell into an ISO YYYY-MM-DD date. Accepted shapes, in
// order: a spreadsheet serial number, an ISO date string, then any other
// recognised date layout (rendered in local time).
func ParseDate(v any) Coerced[string] {
	switch n := v.(type) {
	case nil:
		return Coerced[string]{Issue: &ParseIssue{Reason: "empty"}}
	case float64, float32, int, int32, int64:
		num := ParseNumber(n)
		if !num.Ok() {
			return Coerced[string]{Issue: num.Issue}
		}
		return Coerced[string]{Value: FromSerial(num.Value)}
	case time.Time:
		return Coerced[string]{Value: n.Format(models.DateLayout)}
	}

	s := ToStringSafe(v)
	if s == "" {
		return Coerced[string]{Issue: &ParseIssue{Reason: "empty"}}
	}
	if isoDate.MatchString(s) {
		return Coerced[string]{Value: s}
	}
	// Cells read as text may still hold a serial number.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(serial) && !math.IsInf(serial, 0) {
		return Coerced[string]{Value: FromSerial(serial)}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return Coerced[string]{Value: t.In(time.Local).Format(models.DateLayout)}
		}
	}
	return Coerced[string]{Issue: &ParseIssue{Input: s, Reason: "unrecognised date"}}
}

// ToISODate returns the ISO date of a cell, or "" when it is not a date.
func ToISODate(v any) string {
	return ParseDate(v).Or("")
}

// FromSerial converts a spreadsheet date serial to an ISO date in UTC.
func FromSerial(days float64) string {
	secs := math.Round((days - serialEpochOffset) * 86400)
	return time.Unix(int64(secs), 0).UTC().Format(models.DateLayout)
}

// NormalizeCategory maps a cell to a vehicle category; anything but "car" is a bike.
func NormalizeCategory(v any) models.VehicleCategory {
	if strings.ToLower(ToStringSafe(v)) == string(models.CategoryCar) {
		return models.CategoryCar
	}
	return models.CategoryBike
}

// NormalizeType maps a cell to a vehicle type; anything but "private" is commercial.
func NormalizeType(v any) models.VehicleType {
	if strings.ToLower(ToStringSafe(v)) == string(models.TypePrivate) {
		return models.TypePrivate
	}
	return models.TypeCommercial
}
