// Package signal turns closed-candle indicator snapshots into confirmed entry
// signals. The machine moves WAITING -> CONDITION_MET -> CONFIRMED and emits
// exactly one Signal per confirmation.
package signal

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nirre55/bot-final/internal/analysis/indicator"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/types"
)

type State string

const (
	StateWaiting      State = "WAITING"
	StateConditionMet State = "CONDITION_MET"
	StateConfirmed    State = "CONFIRMED"
)

// ErrBothDirections is returned when one snapshot qualifies as both oversold
// and overbought. Valid thresholds make this impossible.
var ErrBothDirections = errors.New("signal: candle qualifies for both directions")

type Threshold struct {
	Period     int
	Oversold   float64
	Overbought float64
}

type Machine struct {
	thresholds []Threshold

	state   State
	pending types.Side
	// metAt is the open time of the candle that met the oscillator condition;
	// confirmation needs a strictly newer candle.
	metAt int64
}

func NewMachine(thresholds []Threshold) (*Machine, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("signal: at least one threshold is required")
	}
	sorted := append([]Threshold(nil), thresholds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Period < sorted[j].Period })
	for _, th := range sorted {
		if th.Oversold >= th.Overbought {
			return nil, fmt.Errorf("signal: period %d has overlapping bands %.2f/%.2f", th.Period, th.Oversold, th.Overbought)
		}
	}
	return &Machine{thresholds: sorted, state: StateWaiting}, nil
}

func (m *Machine) State() State { return m.state }

// Pending is the direction awaiting confirmation, empty unless CONDITION_MET.
func (m *Machine) Pending() types.Side { return m.pending }

func (m *Machine) Periods() []int {
	out := make([]int, len(m.thresholds))
	for i, th := range m.thresholds {
		out[i] = th.Period
	}
	return out
}

func (m *Machine) Reset() {
	m.state = StateWaiting
	m.pending = ""
	m.metAt = 0
}

// Advance feeds one closed-candle snapshot. It returns a Signal only on the
// candle that confirms a pending condition.
func (m *Machine) Advance(snap indicator.Snapshot, at time.Time) (*types.Signal, error) {
	switch m.state {
	case StateWaiting:
		return nil, m.evaluateCondition(snap)
	case StateConditionMet:
		if snap.OpenTime <= m.metAt {
			return nil, nil
		}
		return m.evaluateConfirmation(snap, at), nil
	default:
		m.Reset()
		return nil, nil
	}
}

func (m *Machine) evaluateCondition(snap indicator.Snapshot) error {
	oversold, overbought, err := m.classify(snap.RSI)
	if err != nil {
		return err
	}
	switch {
	case oversold && overbought:
		return ErrBothDirections
	case oversold:
		m.enter(types.Long, snap.OpenTime)
	case overbought:
		m.enter(types.Short, snap.OpenTime)
	}
	return nil
}

func (m *Machine) enter(side types.Side, openTime int64) {
	m.state = StateConditionMet
	m.pending = side
	m.metAt = openTime
	logger.Infof("[signal] oscillator extreme for %s on all periods, waiting for Heikin Ashi confirmation", side)
}

func (m *Machine) evaluateConfirmation(snap indicator.Snapshot, at time.Time) *types.Signal {
	want, opposite := indicator.ColorGreen, indicator.ColorRed
	if m.pending == types.Short {
		want, opposite = indicator.ColorRed, indicator.ColorGreen
	}
	switch snap.Color {
	case opposite:
		logger.Infof("[signal] %s condition invalidated by a %s candle", m.pending, snap.Color)
		m.Reset()
		return nil
	case want:
		if !snap.VolumeOK {
			logger.Debugf("[signal] %s colour confirmed but volume below mean, still waiting", m.pending)
			return nil
		}
	default:
		return nil
	}
	sig := &types.Signal{
		ID:             uuid.NewString(),
		Direction:      m.pending,
		ConfirmedAt:    at,
		ReferencePrice: snap.Close,
	}
	m.state = StateConfirmed
	logger.Infof("[signal] %s confirmed at %.8g (ha=%s)", sig.Direction, sig.ReferencePrice, snap.Color)
	m.Reset()
	return sig
}

// classify checks every configured period; a missing value disqualifies.
func (m *Machine) classify(values map[int]float64) (oversold, overbought bool, err error) {
	oversold, overbought = true, true
	for _, th := range m.thresholds {
		v, ok := values[th.Period]
		if !ok {
			return false, false, fmt.Errorf("signal: missing rsi(%d)", th.Period)
		}
		if v > th.Oversold {
			oversold = false
		}
		if v < th.Overbought {
			overbought = false
		}
	}
	return oversold, overbought, nil
}
