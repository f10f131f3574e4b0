package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/ledger"
	"github.com/nirre55/bot-final/internal/logger"
	"github.com/nirre55/bot-final/internal/store"
	"github.com/nirre55/bot-final/internal/store/journal"
	"github.com/nirre55/bot-final/internal/trader"
	statushttp "github.com/nirre55/bot-final/internal/transport/http/status"
)

// App owns the process-level wiring: storage, the venue, the trader and
// the status API.
type App struct {
	cfg     *config.Config
	symbol  string
	asset   string
	trader  *trader.Trader
	status  *statushttp.Server
	store   store.Store
	journal *journal.Journal
	ledger  *ledger.Ledger
	gateway exchange.Gateway
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the status API and the trader and blocks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.trader == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print(os.Stdout)
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.status != nil {
		group.Go(func() error {
			if err := a.status.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.trader.Run(ctx)
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Reload applies the settings that may change while running: the log
// level and the trading-hours window.
func (a *App) Reload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	logger.SetLevel(cfg.App.LogLevel)
	hours, err := tradingWindow(cfg.TradingHours)
	if err != nil {
		logger.Errorf("config reload: %v", err)
		return
	}
	a.trader.SetTradingHours(hours)
}

// WatchConfig hot-reloads path into Reload.
func (a *App) WatchConfig(path string) error {
	return config.Watch(path, a.Reload)
}

// Rebase records the current balance as the new ledger high-water mark,
// clearing any outstanding loss. Used after a deposit.
func (a *App) Rebase(ctx context.Context) (store.LedgerRecord, error) {
	acct, err := a.gateway.GetBalance(ctx, a.asset)
	if err != nil {
		return store.LedgerRecord{}, fmt.Errorf("read balance: %w", err)
	}
	return a.ledger.Rebase(ctx, a.symbol, acct.Balance)
}

func (a *App) Trader() *trader.Trader {
	if a == nil {
		return nil
	}
	return a.trader
}

// Close releases the databases.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
