package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/infbuy/config"
	"github.com/vadiminshakov/infbuy/internal/clients"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/events"
	"github.com/vadiminshakov/infbuy/internal/metrics"
	"github.com/vadiminshakov/infbuy/internal/services/chart"
	"github.com/vadiminshakov/infbuy/internal/services/pricer"
	"github.com/vadiminshakov/infbuy/internal/services/tracker"
	"github.com/vadiminshakov/infbuy/internal/setup"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"github.com/vadiminshakov/infbuy/internal/storage/memory"
	"github.com/vadiminshakov/infbuy/internal/storage/postgres"
	"github.com/vadiminshakov/infbuy/internal/storage/walstore"
	"github.com/vadiminshakov/infbuy/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type app struct {
	l       *zap.Logger
	cfg     config.Config
	m       *metrics.Metrics
	bus     *events.Broadcaster
	tracker *tracker.Tracker
	charts  *chart.Builder
	prices  pricer.HistoryProvider
	closers []func() error
}

func newApp(ctx context.Context, l *zap.Logger, cfg config.Config) (*app, error) {
	a := &app{l: l, cfg: cfg, m: metrics.New(), bus: events.NewBroadcaster(0)}

	stores, err := openStores(ctx, l, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, stores.Close)

	prices, err := a.priceSource(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.prices = prices

	pubs := []events.Publisher{a.bus}
	if len(cfg.Events.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			a.close()
			return nil, errors.Wrap(err, "kafka publisher")
		}
		a.closers = append(a.closers, kp.Close)
		pubs = append(pubs, kp)
	}

	a.tracker = tracker.New(l, stores, prices, events.NewMultiPublisher(l, pubs...), a.m, cfg.Defaults)
	a.charts = chart.NewBuilder(l, prices)

	return a, nil
}

func openStores(ctx context.Context, l *zap.Logger, cfg config.Storage) (storage.Stores, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendPostgres:
		stores, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return storage.Stores{}, errors.Wrap(err, "open postgres")
		}
		return stores, nil
	default:
		s, err := walstore.Open(l, cfg.WALDir)
		if err != nil {
			return storage.Stores{}, errors.Wrap(err, "open wal")
		}
		return s.Stores(), nil
	}
}

// priceSource returns nil when prices are disabled.
func (a *app) priceSource(ctx context.Context) (pricer.HistoryProvider, error) {
	pc := a.cfg.Prices

	var next pricer.HistoryProvider
	switch pc.Source {
	case config.SourceNone:
		return nil, nil
	case config.SourceYahoo:
		next = pricer.NewYahooProvider(a.l, pc.YahooBaseURL, pc.Range)
	case config.SourceBybit, config.SourceBinance, config.SourceHyperliquid:
		p, err := a.cryptoSource(ctx, pc.Source)
		if err != nil {
			return nil, err
		}
		next = p
	default:
		crypto, err := a.cryptoSource(ctx, pc.Crypto)
		if err != nil {
			return nil, err
		}
		next = pricer.NewRouter(pricer.NewYahooProvider(a.l, pc.YahooBaseURL, pc.Range), crypto)
	}

	var backend pricer.CacheBackend = pricer.NewMemoryCache()
	if pc.RedisAddr != "" {
		client, err := pricer.DialRedis(ctx, pc.RedisAddr)
		if err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		a.closers = append(a.closers, client.Close)
		backend = pricer.NewRedisCache(client)
	}

	a.l.Info("price source ready",
		zap.String("source", next.Name()),
		zap.Bool("redis", pc.RedisAddr != ""),
		zap.String("timezone", pc.Location.String()))
	return pricer.NewCachedProvider(a.l, next, backend, pc.Location, pc.RefreshAt, a.m), nil
}

func (a *app) cryptoSource(ctx context.Context, source string) (pricer.HistoryProvider, error) {
	days := a.cfg.Prices.KlineDays
	switch source {
	case config.SourceBybit:
		return pricer.NewBybitProvider(clients.BybitFromEnv(), days), nil
	case config.SourceHyperliquid:
		info, err := clients.NewHyperliquidInfo(ctx, a.cfg.Prices.HyperliquidURL)
		if err != nil {
			return nil, errors.Wrap(err, "hyperliquid client")
		}
		return pricer.NewHyperliquidProvider(info, days), nil
	default:
		return pricer.NewBinanceProvider(clients.BinanceFromEnv(), days), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.l.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *app) serve(ctx context.Context) error {
	if _, err := a.tracker.GetPositions(ctx); err != nil {
		return err
	}

	srv := web.NewServer(a.l, a.cfg.HTTPAddr, a.tracker, a.charts, a.bus, a.m.Handler())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		a.warmPrices(ctx)
		return nil
	})
	return g.Wait()
}

// warmPrices fills the price cache for every open position so the first page load does not wait on the source.
func (a *app) warmPrices(ctx context.Context) {
	if a.prices == nil {
		return
	}
	ps, err := a.tracker.GetPositions(ctx)
	if err != nil {
		a.l.Warn("price warm-up skipped", zap.Error(err))
		return
	}
	seen := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		ticker := p.BaseTicker()
		if _, ok := seen[ticker]; ok || p.Settled {
			continue
		}
		seen[ticker] = struct{}{}
		if ctx.Err() != nil {
			return
		}
		if _, err := a.prices.DailyCloses(ctx, ticker); err != nil {
			a.l.Warn("price warm-up failed", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	a.l.Debug("price cache warmed", zap.Int("tickers", len(seen)))
}

func (a *app) setup(ctx context.Context) error {
	req, err := setup.RunCreatePosition(a.cfg.Defaults)
	if err != nil {
		return err
	}
	p, err := a.tracker.CreatePosition(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s), per trade %s\n", p.Name, p.ID, p.PerTradeAmount.StringFixed(2))
	return nil
}

func (a *app) trade(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("trade needs exactly one position id or name")
	}
	p, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}

	req, err := setup.RunTradeForm(p.Name, time.Now())
	if err != nil {
		return err
	}
	res, err := a.tracker.AddTransaction(ctx, p.ID, req)
	if err != nil {
		return err
	}

	before, after := res.Change.Before, res.Change.After
	fmt.Printf("average %s -> %s, quantity %s -> %s, T %s -> %s\n",
		before.AveragePrice.StringFixed(4), after.AveragePrice.StringFixed(4),
		before.Quantity, after.Quantity,
		before.TValue, after.TValue)
	if res.Compounded != nil {
		fmt.Printf("capital compounded by %s\n", res.Compounded.Delta.StringFixed(2))
	}
	if res.SettlementEligible {
		fmt.Println("position is flat and can be settled")
	}
	return a.report(ctx, p.ID)
}

func (a *app) show(ctx context.Context, args []string) error {
	if len(args) == 0 {
		ps, err := a.tracker.GetPositions(ctx)
		if err != nil {
			return err
		}
		for _, p := range ps {
			fmt.Printf("%-36s  %-28s  %s  %s  qty %s\n",
				p.ID, p.Name, p.Version, p.Phase, p.Quantity)
		}
		return nil
	}
	p, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	return a.report(ctx, p.ID)
}

func (a *app) report(ctx context.Context, id string) error {
	r, err := a.tracker.Guidance(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(setup.RenderReport(r))
	return nil
}

// resolve matches an id first, then an open position by name.
func (a *app) resolve(ctx context.Context, ref string) (*domain.Position, error) {
	ps, err := a.tracker.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.ID == ref {
			return p, nil
		}
	}
	for _, p := range ps {
		if !p.Settled && strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return nil, errors.Wrapf(storage.ErrNotFound, "position %q", ref)
}
