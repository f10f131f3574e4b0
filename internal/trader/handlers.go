package trader

import "fmt"

type ExecutionHandler struct{}

func (h *ExecutionHandler) Type() EventType { return EvtExecution }

func (h *ExecutionHandler) Handle(ctx *HandlerContext, evt EventEnvelope) error {
	if evt.Execution == nil {
		return fmt.Errorf("execution event without report")
	}
	ctx.Trader().route(*evt.Execution)
	return nil
}

type AccountHandler struct{}

func (h *AccountHandler) Type() EventType { return EvtAccount }

func (h *AccountHandler) Handle(ctx *HandlerContext, evt EventEnvelope) error {
	if evt.Account == nil {
		return fmt.Errorf("account event without update")
	}
	ctx.Trader().applyAccountUpdate(*evt.Account)
	return nil
}

type ReconnectedHandler struct{}

func (h *ReconnectedHandler) Type() EventType { return EvtReconnected }

func (h *ReconnectedHandler) Handle(ctx *HandlerContext, _ EventEnvelope) error {
	ctx.Trader().requestResync("order stream reconnected")
	return nil
}

type OrderResultHandler struct{}

func (h *OrderResultHandler) Type() EventType { return EvtOrderResult }

func (h *OrderResultHandler) Handle(ctx *HandlerContext, evt EventEnvelope) error {
	if evt.Result == nil || evt.Result.Order == nil {
		return fmt.Errorf("order result without order")
	}
	ctx.Trader().handleOrderResult(*evt.Result)
	return nil
}

type PositionHandler struct{}

func (h *PositionHandler) Type() EventType { return EvtPosition }

func (h *PositionHandler) Handle(ctx *HandlerContext, evt EventEnvelope) error {
	if evt.Position == nil {
		return fmt.Errorf("position event without result")
	}
	return ctx.Trader().handlePosition(*evt.Position)
}

type SnapshotHandler struct{}

func (h *SnapshotHandler) Type() EventType { return EvtSnapshot }

func (h *SnapshotHandler) Handle(ctx *HandlerContext, evt EventEnvelope) error {
	if evt.Snapshot == nil {
		return fmt.Errorf("snapshot event without result")
	}
	return ctx.Trader().handleSnapshot(*evt.Snapshot)
}
