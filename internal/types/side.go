package types

import "strings"

// Side is a hedge-mode position side. It doubles as a signal direction.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

var Sides = [2]Side{Long, Short}

func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return Long, true
	case "SHORT", "SELL":
		return Short, true
	default:
		return "", false
	}
}

func (s Side) Valid() bool { return s == Long || s == Short }

func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Sign is +1 for LONG and -1 for SHORT.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// OpenSide is the order side that increases a position on s.
func (s Side) OpenSide() string {
	if s == Short {
		return "SELL"
	}
	return "BUY"
}

// CloseSide is the order side that reduces a position on s.
func (s Side) CloseSide() string {
	if s == Short {
		return "BUY"
	}
	return "SELL"
}

func (s Side) String() string { return string(s) }
