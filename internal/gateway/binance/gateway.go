package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/pkg/circuit"
	"github.com/nirre55/bot-final/internal/pkg/symbol"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

// Gateway implements exchange.Gateway on the USDⓈ-M futures REST API in
// hedge mode. Every call goes through one circuit breaker that only counts
// transient venue failures.
type Gateway struct {
	cfg     Config
	client  *futures.Client
	breaker *circuit.Breaker

	mu      sync.RWMutex
	filters map[string]sizing.Filters
}

var _ exchange.Gateway = (*Gateway)(nil)

func NewGateway(cfg Config) (*Gateway, error) {
	final := cfg.withDefaults()
	client, err := newFuturesClient(final)
	if err != nil {
		return nil, err
	}
	breaker := circuit.New(circuit.Options{
		Name:      "binance-rest",
		Threshold: final.BreakerThreshold,
		Cooldown:  final.BreakerTimeout,
		Counts:    exchange.CountsAgainstVenue,
	})
	return &Gateway{cfg: final, client: client, breaker: breaker, filters: make(map[string]sizing.Filters)}, nil
}

func (g *Gateway) call(fn func() error) error {
	err := g.breaker.Do(func() error { return wrapError(fn()) })
	if errors.Is(err, circuit.ErrOpen) {
		return &exchange.OrderError{Class: exchange.ClassTransient, Message: "REST circuit open", Err: err}
	}
	return err
}

func (g *Gateway) recvWindow() futures.RequestOption {
	return futures.WithRecvWindow(g.cfg.RecvWindow)
}

func venueSymbol(s string) string { return symbol.Normalize(s) }

func (g *Gateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	sym := venueSymbol(req.Symbol)
	f, known := g.cachedFilters(sym)
	svc := g.client.NewCreateOrderService().
		Symbol(sym).
		Side(futures.SideType(req.Side)).
		PositionSide(futures.PositionSideType(req.PositionSide)).
		Type(futures.OrderType(req.Type)).
		Quantity(formatQty(f, known, req.Quantity)).
		NewClientOrderID(req.ClientOrderID)
	switch req.Type {
	case exchange.OrderStopMarket:
		svc = svc.StopPrice(formatPrice(f, known, req.StopPrice)).WorkingType(futures.WorkingTypeMarkPrice)
	case exchange.OrderStop, exchange.OrderTakeProfit:
		svc = svc.StopPrice(formatPrice(f, known, req.StopPrice)).
			Price(formatPrice(f, known, req.Price)).
			TimeInForce(futures.TimeInForceTypeGTC).
			WorkingType(futures.WorkingTypeMarkPrice)
	}

	var res *futures.CreateOrderResponse
	err := g.call(func() error {
		var err error
		res, err = svc.Do(ctx, g.recvWindow())
		return err
	})
	if err != nil {
		return exchange.OrderAck{}, fmt.Errorf("place %s %s %s: %w", req.Type, req.Side, req.PositionSide, err)
	}
	return exchange.OrderAck{
		OrderID:       strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Status:        exchange.OrderStatus(res.Status),
		AvgPrice:      parseFloat(res.AvgPrice),
		ExecutedQty:   parseFloat(res.ExecutedQuantity),
	}, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, sym, orderID, clientOrderID string) error {
	svc := g.client.NewCancelOrderService().Symbol(venueSymbol(sym))
	switch {
	case orderID != "":
		id, err := strconv.ParseInt(orderID, 10, 64)
		if err != nil {
			return fmt.Errorf("cancel: bad order id %q: %w", orderID, err)
		}
		svc = svc.OrderID(id)
	case clientOrderID != "":
		svc = svc.OrigClientOrderID(clientOrderID)
	default:
		return fmt.Errorf("cancel: order id or client order id required")
	}
	return g.call(func() error {
		_, err := svc.Do(ctx, g.recvWindow())
		return err
	})
}

func (g *Gateway) GetPosition(ctx context.Context, sym string) ([]types.PositionSnapshot, error) {
	sym = venueSymbol(sym)
	var risks []*futures.PositionRisk
	err := g.call(func() error {
		var err error
		risks, err = g.client.NewGetPositionRiskService().Symbol(sym).Do(ctx, g.recvWindow())
		return err
	})
	if err != nil {
		return nil, err
	}
	var out []types.PositionSnapshot
	for _, r := range risks {
		if r == nil || !strings.EqualFold(r.Symbol, sym) {
			continue
		}
		side, ok := types.ParseSide(r.PositionSide)
		if !ok {
			// BOTH means the account is in one-way mode.
			logger.Warnf("[binance] ignoring %s position side %q", sym, r.PositionSide)
			continue
		}
		out = append(out, types.PositionSnapshot{
			Symbol:     sym,
			Side:       side,
			Quantity:   math.Abs(parseFloat(r.PositionAmt)),
			EntryPrice: parseFloat(r.EntryPrice),
		})
	}
	return out, nil
}

func (g *Gateway) GetOpenOrders(ctx context.Context, sym string) ([]exchange.OpenOrder, error) {
	sym = venueSymbol(sym)
	var orders []*futures.Order
	err := g.call(func() error {
		var err error
		orders, err = g.client.NewListOpenOrdersService().Symbol(sym).Do(ctx, g.recvWindow())
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]exchange.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		side, _ := types.ParseSide(string(o.PositionSide))
		out = append(out, exchange.OpenOrder{
			OrderID:       strconv.FormatInt(o.OrderID, 10),
			ClientOrderID: o.ClientOrderID,
			Side:          string(o.Side),
			PositionSide:  side,
			Type:          exchange.OrderType(o.Type),
			Quantity:      parseFloat(o.OrigQuantity) - parseFloat(o.ExecutedQuantity),
			StopPrice:     parseFloat(o.StopPrice),
			Price:         parseFloat(o.Price),
			Status:        exchange.OrderStatus(o.Status),
		})
	}
	return out, nil
}

func (g *Gateway) QueryOrder(ctx context.Context, sym, orderID, clientOrderID string) (exchange.ExecutionReport, error) {
	sym = venueSymbol(sym)
	svc := g.client.NewGetOrderService().Symbol(sym)
	switch {
	case orderID != "":
		id, err := strconv.ParseInt(orderID, 10, 64)
		if err != nil {
			return exchange.ExecutionReport{}, fmt.Errorf("query: bad order id %q: %w", orderID, err)
		}
		svc = svc.OrderID(id)
	case clientOrderID != "":
		svc = svc.OrigClientOrderID(clientOrderID)
	default:
		return exchange.ExecutionReport{}, fmt.Errorf("query: order id or client order id required")
	}
	var o *futures.Order
	err := g.call(func() error {
		var err error
		o, err = svc.Do(ctx, g.recvWindow())
		return err
	})
	if err != nil {
		return exchange.ExecutionReport{}, err
	}
	side, _ := types.ParseSide(string(o.PositionSide))
	return exchange.ExecutionReport{
		Symbol:              o.Symbol,
		OrderID:             strconv.FormatInt(o.OrderID, 10),
		ClientOrderID:       o.ClientOrderID,
		Side:                string(o.Side),
		PositionSide:        side,
		OrderType:           exchange.OrderType(o.OrigType),
		Status:              exchange.OrderStatus(o.Status),
		ExecutionType:       "QUERY",
		CumulativeFilledQty: parseFloat(o.ExecutedQuantity),
		AveragePrice:        parseFloat(o.AvgPrice),
		EventTime:           time.UnixMilli(o.UpdateTime),
	}, nil
}

// GetRealizedIncome returns realized PnL, commissions and funding booked on
// sym since the given time.
func (g *Gateway) GetRealizedIncome(ctx context.Context, sym string, since time.Time) ([]exchange.Income, error) {
	sym = venueSymbol(sym)
	var items []*futures.IncomeHistory
	err := g.call(func() error {
		var err error
		items, err = g.client.NewGetIncomeHistoryService().
			Symbol(sym).
			StartTime(since.UnixMilli()).
			Limit(1000).
			Do(ctx, g.recvWindow())
		return err
	})
	if err != nil {
		return nil, err
	}
	var out []exchange.Income
	for _, it := range items {
		if it == nil {
			continue
		}
		switch it.IncomeType {
		case "REALIZED_PNL", "COMMISSION", "FUNDING_FEE":
		default:
			continue
		}
		out = append(out, exchange.Income{
			Time:   time.UnixMilli(it.Time),
			Amount: parseFloat(it.Income),
			Type:   it.IncomeType,
		})
	}
	return out, nil
}

func (g *Gateway) GetBalance(ctx context.Context, asset string) (types.AccountSnapshot, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	var balances []*futures.Balance
	err := g.call(func() error {
		var err error
		balances, err = g.client.NewGetBalanceService().Do(ctx, g.recvWindow())
		return err
	})
	if err != nil {
		return types.AccountSnapshot{}, err
	}
	for _, b := range balances {
		if b != nil && strings.EqualFold(b.Asset, asset) {
			return types.AccountSnapshot{
				Asset:     asset,
				Balance:   parseFloat(b.Balance),
				Available: parseFloat(b.AvailableBalance),
				UpdatedAt: time.Now(),
			}, nil
		}
	}
	return types.AccountSnapshot{}, fmt.Errorf("asset %s not in futures wallet", asset)
}

// SymbolFilters reads lot and tick sizes from exchange info once per symbol.
func (g *Gateway) SymbolFilters(ctx context.Context, sym string) (sizing.Filters, error) {
	sym = venueSymbol(sym)
	g.mu.RLock()
	f, ok := g.filters[sym]
	g.mu.RUnlock()
	if ok {
		return f, nil
	}
	var info *futures.ExchangeInfo
	err := g.call(func() error {
		var err error
		info, err = g.client.NewExchangeInfoService().Do(ctx)
		return err
	})
	if err != nil {
		return sizing.Filters{}, err
	}
	for _, s := range info.Symbols {
		if !strings.EqualFold(s.Symbol, sym) {
			continue
		}
		if lot := s.LotSizeFilter(); lot != nil {
			f.MinQty = parseFloat(lot.MinQuantity)
			f.StepSize = parseFloat(lot.StepSize)
		}
		if price := s.PriceFilter(); price != nil {
			f.TickSize = parseFloat(price.TickSize)
		}
		g.mu.Lock()
		g.filters[sym] = f
		g.mu.Unlock()
		return f, nil
	}
	return sizing.Filters{}, fmt.Errorf("symbol %s not listed", sym)
}

func (g *Gateway) cachedFilters(sym string) (sizing.Filters, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.filters[sym]
	return f, ok
}

func formatQty(f sizing.Filters, ok bool, q float64) string {
	if ok && f.StepSize > 0 {
		return f.FormatQty(q)
	}
	return formatFloat(q)
}

func formatPrice(f sizing.Filters, ok bool, p float64) string {
	if ok && f.TickSize > 0 {
		return f.FormatPrice(p)
	}
	return formatFloat(p)
}
