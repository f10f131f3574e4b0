package binance

import (
	"errors"

	"github.com/adshao/go-binance/v2/common"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
)

// Venue error codes the core reacts to.
const (
	codeUnknown          = -1000
	codeDisconnected     = -1001
	codeTooManyRequests  = -1003
	codeTimeout          = -1007
	codeServerBusy       = -1008
	codeTooManyOrders    = -1015
	codeCancelRejected   = -2011
	codeNoSuchOrder      = -2013
	codeBalanceShort     = -2018
	codeMarginShort      = -2019
	codeMaxPosition      = -2027
	codeLeverageTooHigh  = -2028
	codeImmediateTrigger = -2021
)

func classForCode(code int64) exchange.ErrorClass {
	switch code {
	case codeMarginShort, codeBalanceShort, codeMaxPosition, codeLeverageTooHigh:
		return exchange.ClassInsufficientCapital
	case codeUnknown, codeDisconnected, codeTooManyRequests, codeTimeout, codeServerBusy, codeTooManyOrders:
		return exchange.ClassTransient
	default:
		return exchange.ClassPermanent
	}
}

// wrapError turns an SDK error into a classified *exchange.OrderError.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var oe *exchange.OrderError
	if errors.As(err, &oe) {
		return err
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &exchange.OrderError{
			Class:   classForCode(apiErr.Code),
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Unknown: apiErr.Code == codeCancelRejected || apiErr.Code == codeNoSuchOrder,
			Err:     err,
		}
	}
	return &exchange.OrderError{Class: exchange.Classify(err), Message: err.Error(), Err: err}
}
