package trader

import "github.com/nirre55/bot-final/internal/logger"

// HandlerRegistry maps event types to their handler.
type HandlerRegistry struct {
	handlers map[EventType]EventHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[EventType]EventHandler)}
}

// Register replaces any handler already bound to the same type.
func (r *HandlerRegistry) Register(h EventHandler) {
	if h == nil {
		return
	}
	r.handlers[h.Type()] = h
}

func (r *HandlerRegistry) Get(t EventType) (EventHandler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

func (r *HandlerRegistry) RegisterDefaultHandlers() {
	r.Register(&ExecutionHandler{})
	r.Register(&AccountHandler{})
	r.Register(&ReconnectedHandler{})
	r.Register(&OrderResultHandler{})
	r.Register(&PositionHandler{})
	r.Register(&SnapshotHandler{})
	logger.Debugf("Trader: registered %d event handlers", len(r.handlers))
}
