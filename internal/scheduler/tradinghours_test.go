package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowDisabledIsAlwaysOpen(t *testing.T) {
	w, err := ParseWindow(false, "bogus", "", "Nowhere/City")
	require.NoError(t, err)
	assert.True(t, w.Open(time.Now()))
	assert.Equal(t, "always", w.String())
}

func TestWindowSameDay(t *testing.T) {
	w, err := ParseWindow(true, "09:00", "17:30", "UTC")
	require.NoError(t, err)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, w.Open(day.Add(8*time.Hour+59*time.Minute)))
	assert.True(t, w.Open(day.Add(9*time.Hour)))
	assert.True(t, w.Open(day.Add(17*time.Hour+29*time.Minute)))
	assert.False(t, w.Open(day.Add(17*time.Hour+30*time.Minute)))
}

func TestWindowWrapsMidnight(t *testing.T) {
	w, err := ParseWindow(true, "22:00", "06:00", "UTC")
	require.NoError(t, err)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, w.Open(day.Add(23*time.Hour)))
	assert.True(t, w.Open(day.Add(2*time.Hour)))
	assert.False(t, w.Open(day.Add(12*time.Hour)))
	assert.False(t, w.Open(day.Add(6*time.Hour)))
}

func TestWindowTimezone(t *testing.T) {
	w, err := ParseWindow(true, "09:00", "17:00", "America/New_York")
	require.NoError(t, err)
	// 13:30 UTC is 08:30 in New York during EST.
	assert.False(t, w.Open(time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)))
	assert.True(t, w.Open(time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)))
}

func TestWindowRejectsBadInput(t *testing.T) {
	_, err := ParseWindow(true, "25:00", "06:00", "UTC")
	assert.Error(t, err)
	_, err = ParseWindow(true, "09:00", "17:00", "Mars/Olympus")
	assert.Error(t, err)
}
