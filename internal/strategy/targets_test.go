package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nirre55/bot-final/internal/types"
)

func assertRel(t *testing.T, want, got float64) {
	t.Helper()
	assert.LessOrEqual(t, math.Abs(got-want)/want, 1e-6, "want %.6f got %.6f", want, got)
}

func TestCascadeTargetRoundTrip(t *testing.T) {
	const entry, hedge = 50000.0, 49800.0
	distance := entry - hedge

	longWant := []float64{50250.2, 50450.4, 50650.6, 50850.8}
	for i, want := range longWant {
		assertRel(t, want, CascadeTarget(types.Long, entry, distance, 1, i+1, 0.001))
	}
	shortWant := []float64{49350.6, 49150.8, 48951.0}
	for i, want := range shortWant {
		assertRel(t, want, CascadeTarget(types.Short, hedge, distance, 1, i+2, 0.001))
	}
}

func TestRRTargets(t *testing.T) {
	assert.InDelta(t, 24.60, RRTarget(types.Long, 24.50, 0.20, 0.5), 1e-9)
	assert.InDelta(t, 24.00, RRTarget(types.Short, 24.30, 0.20, 1.5), 1e-9)

	off := TargetOffsets{SafetyPercent: 0.0005, MinDistancePercent: 0.002, SmallDistancePercent: 0.0015}
	assert.InDelta(t, 100.95, InitialRRTarget(types.Long, 100, 1, off), 1e-9)
	assert.InDelta(t, 100.2, InitialRRTarget(types.Long, 100, 0.1, off), 1e-9, "small distance pushes the target out")
	assert.InDelta(t, 99.05, InitialRRTarget(types.Short, 100, 1, off), 1e-9)
}

func TestTriggerAndLevels(t *testing.T) {
	assert.InDelta(t, 99.9, TargetTrigger(types.Long, 100, 0.001), 1e-9)
	assert.InDelta(t, 100.1, TargetTrigger(types.Short, 100, 0.001), 1e-9)
	assert.InDelta(t, 101, PercentTarget(types.Long, 100, 0.01), 1e-9)
	assert.InDelta(t, 99, PercentTarget(types.Short, 100, 0.01), 1e-9)
	assert.InDelta(t, 89.91, ProtectiveLevel(types.Long, 90, 110, 0.001), 1e-9)
	assert.InDelta(t, 110.11, ProtectiveLevel(types.Short, 90, 110, 0.001), 1e-9)
}

func TestBreakevenStop(t *testing.T) {
	realized := LegPnL(types.Short, 24.30, 24.00, 30)
	assert.InDelta(t, 9, realized, 1e-9)
	assert.InDelta(t, 23.90, BreakevenStop(types.Long, 24.50, 15, realized), 1e-9)

	realized = LegPnL(types.Long, 24.50, 24.60, 15)
	level := BreakevenStop(types.Short, 24.30, 30, realized)
	assert.InDelta(t, 24.35, level, 1e-9)
	assert.True(t, stopWouldTrigger(types.Short, level, 24.60))
	assert.False(t, stopWouldTrigger(types.Long, 23.90, 24.00))
}
