package trader

// EventHandler processes one event type from the execution channel.
type EventHandler interface {
	Type() EventType

	Handle(ctx *HandlerContext, evt EventEnvelope) error
}

// HandlerContext gives handlers access to the trader without exposing it
// to the registry's callers.
type HandlerContext struct {
	trader *Trader
}

func NewHandlerContext(t *Trader) *HandlerContext {
	return &HandlerContext{trader: t}
}

func (c *HandlerContext) Trader() *Trader {
	return c.trader
}
