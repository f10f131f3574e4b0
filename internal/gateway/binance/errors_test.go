package binance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
)

func TestWrapErrorClassifiesVenueCodes(t *testing.T) {
	cases := []struct {
		code  int64
		class exchange.ErrorClass
	}{
		{codeMarginShort, exchange.ClassInsufficientCapital},
		{codeBalanceShort, exchange.ClassInsufficientCapital},
		{codeMaxPosition, exchange.ClassInsufficientCapital},
		{codeLeverageTooHigh, exchange.ClassInsufficientCapital},
		{codeTooManyRequests, exchange.ClassTransient},
		{codeTimeout, exchange.ClassTransient},
		{codeImmediateTrigger, exchange.ClassPermanent},
		{-4164, exchange.ClassPermanent},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			err := wrapError(&common.APIError{Code: tc.code, Message: "x"})
			var oe *exchange.OrderError
			require.ErrorAs(t, err, &oe)
			assert.Equal(t, tc.class, oe.Class)
			assert.Equal(t, tc.code, oe.Code)
		})
	}
}

func TestWrapErrorFlagsUnknownOrder(t *testing.T) {
	err := wrapError(fmt.Errorf("cancel: %w", &common.APIError{Code: codeNoSuchOrder, Message: "Order does not exist."}))
	assert.ErrorIs(t, err, exchange.ErrUnknownOrder)
	assert.ErrorIs(t, err, exchange.ErrPermanent)
	assert.False(t, exchange.Retryable(err))
}

func TestWrapErrorKeepsNetworkFailuresTransient(t *testing.T) {
	assert.Nil(t, wrapError(nil))
	err := wrapError(context.DeadlineExceeded)
	assert.True(t, exchange.Retryable(err))

	already := &exchange.OrderError{Class: exchange.ClassInsufficientCapital, Message: "m"}
	assert.Same(t, already, wrapError(already))

	assert.ErrorIs(t, wrapError(errors.New("boom")), exchange.ErrPermanent)
}
