package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ukydev/fleet-tracker/internal/models"
)

func TestToStringSafe(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, ""},
		{"trimmed string", "  Honda  ", "Honda"},
		{"integer float", 15000.0, "15000"},
		{"fraction", 12.5, "12.5"},
		{"int", 42, "42"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToStringSafe(tt.input))
		})
	}
}

func TestToNumberSafe(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{"thousands separator", "15,250", 15250},
		{"multiple separators", "1,234,567.5", 1234567.5},
		{"plain", "42", 42},
		{"padded", "  7  ", 7},
		{"float input", 99.5, 99.5},
		{"int input", 3, 3},
		{"empty", "", 0},
		{"nil", nil, 0},
		{"garbage", "abc", 0},
		{"NaN string", "NaN", 0},
		{"infinity string", "Inf", 0},
		{"NaN float", math.NaN(), 0},
		{"infinite float", math.Inf(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToNumberSafe(tt.input)
			assert.False(t, math.IsNaN(got))
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToISODate_Serial(t *testing.T) {
	assert.Equal(t, "2024-01-01", ToISODate(45292.0))
	assert.Equal(t, "2024-01-01", ToISODate(45292))
	assert.Equal(t, "2024-01-01", ToISODate("45292"))
	assert.Equal(t, "1970-01-01", ToISODate(25569.0))
}

func TestToISODate_ISOIsUnchanged(t *testing.T) {
	for _, d := range []string{"2024-01-01", "2026-12-31", "1999-02-28"} {
		assert.Equal(t, d, ToISODate(d))
		assert.Equal(t, d, ToISODate(ToISODate(d)))
	}
}

func TestToISODate_OtherLayouts(t *testing.T) {
	assert.Equal(t, "2024-03-15", ToISODate("03/15/2024"))
	assert.Equal(t, "2024-03-15", ToISODate("15 Mar 2024"))
	assert.Equal(t, "2024-03-15", ToISODate("March 15, 2024"))
}

func TestToISODate_Unparseable(t *testing.T) {
	assert.Equal(t, "", ToISODate(""))
	assert.Equal(t, "", ToISODate(nil))
	assert.Equal(t, "", ToISODate("next tuesday"))

	res := ParseDate("next tuesday")
	assert.False(t, res.Ok())
	assert.Contains(t, res.Issue.Error(), "unrecognised date")
}

func TestFromSerial(t *testing.T) {
	assert.Equal(t, "2024-01-01", FromSerial(45292))
	assert.Equal(t, "1970-01-01", FromSerial(25569))
}

func TestCoerced_Or(t *testing.T) {
	assert.Equal(t, 5.0, ParseNumber("x").Or(5))
	assert.Equal(t, 12.0, ParseNumber("12").Or(5))
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, models.CategoryCar, NormalizeCategory("car"))
	assert.Equal(t, models.CategoryCar, NormalizeCategory(" CAR "))
	assert.Equal(t, models.CategoryBike, NormalizeCategory("bike"))
	assert.Equal(t, models.CategoryBike, NormalizeCategory("cars"))
	assert.Equal(t, models.CategoryBike, NormalizeCategory(nil))
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, models.TypePrivate, NormalizeType("Private"))
	assert.Equal(t, models.TypeCommercial, NormalizeType("commercial"))
	assert.Equal(t, models.TypeCommercial, NormalizeType("privately owned"))
	assert.Equal(t, models.TypeCommercial, NormalizeType(""))
}

func TestUpper(t *testing.T) {
	assert.Equal(t, "MH01AB1234", Upper(" mh01ab1234 "))
}
