package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrTransient           = errors.New("transient exchange error")
	ErrPermanent           = errors.New("permanent exchange error")
	// ErrUnknownOrder marks a cancel or query for an order the venue no
	// longer knows, typically because it already filled or was cancelled.
	ErrUnknownOrder = errors.New("unknown order")
)

type ErrorClass int

const (
	ClassPermanent ErrorClass = iota
	ClassTransient
	ClassInsufficientCapital
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassInsufficientCapital:
		return "insufficient_capital"
	default:
		return "permanent"
	}
}

func (c ErrorClass) sentinel() error {
	switch c {
	case ClassTransient:
		return ErrTransient
	case ClassInsufficientCapital:
		return ErrInsufficientCapital
	default:
		return ErrPermanent
	}
}

// OrderError is a venue rejection with its classification.
type OrderError struct {
	Class   ErrorClass
	Code    int64
	Message string
	Unknown bool
	Err     error
}

func (e *OrderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code=%d): %s", e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *OrderError) Unwrap() error { return e.Err }

// Is lets errors.Is match the class sentinels.
func (e *OrderError) Is(target error) bool {
	if target == ErrUnknownOrder {
		return e.Unknown
	}
	return target == e.Class.sentinel()
}

// Classify buckets any error returned by a Gateway call.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Class
	}
	switch {
	case errors.Is(err, ErrInsufficientCapital):
		return ClassInsufficientCapital
	case errors.Is(err, ErrTransient):
		return ClassTransient
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	return ClassPermanent
}

// Retryable excludes insufficient-capital and permanent rejections.
func Retryable(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}

// CountsAgainstVenue reports whether an error indicates venue trouble rather
// than a business rejection.
func CountsAgainstVenue(err error) bool {
	return Classify(err) == ClassTransient
}
