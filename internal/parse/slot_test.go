package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotDate(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  string
		expectErr bool
	}{
		{name: "ISO", raw: "2026-11-15", expected: "2026-11-15"},
		{name: "Day first slash", raw: "15/11/2026", expected: "2026-11-15"},
		{name: "Single digits", raw: "5/3/2026", expected: "2026-03-05"},
		{name: "Dotted", raw: "05.03.2026", expected: "2026-03-05"},
		{name: "Long month", raw: "November 15, 2026", expected: "2026-11-15"},
		{name: "Ordinal", raw: "15th Nov 2026", expected: "2026-11-15"},
		{name: "Extra spaces", raw: "  15   November  2026 ", expected: "2026-11-15"},
		{name: "Weekday", raw: "Sunday, November 15, 2026", expected: "2026-11-15"},
		{name: "Garbage", raw: "soon", expectErr: true},
		{name: "Empty", raw: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SlotDate(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSlotTime(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  string
		expectErr bool
	}{
		{name: "24h", raw: "09:30", expected: "09:30"},
		{name: "With seconds", raw: "14:05:00", expected: "14:05"},
		{name: "12h", raw: "2:15 PM", expected: "14:15"},
		{name: "Lowercase meridiem", raw: "09:00 am", expected: "09:00"},
		{name: "Hour only", raw: "3pm", expected: "15:00"},
		{name: "Garbage", raw: "noonish", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SlotTime(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestCapacity(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  int
		expectErr bool
	}{
		{name: "Plural", raw: "3 slots available", expected: 3},
		{name: "Singular", raw: "1 slot left", expected: 1},
		{name: "Label first", raw: "Available: 12", expected: 12},
		{name: "Bare number", raw: "4", expected: 4},
		{name: "Fully booked", raw: "Fully Booked", expected: 0},
		{name: "No slots", raw: "No slots", expected: 0},
		{name: "Unknown", raw: "call us", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Capacity(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
