package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mmcore/internal/api"
	"mmcore/internal/book"
	"mmcore/internal/engine"
	"mmcore/internal/ledger"
	"mmcore/internal/persist"
	"mmcore/internal/scenario"
	"mmcore/internal/store"
	"mmcore/internal/strategy"
)

func main() {
	port := flag.String("port", "8088", "monitor server port")
	dbPath := flag.String("db", "mmcore.db", "SQLite fill archive path (empty = disabled)")
	snapshotPath := flag.String("snapshot", "", "position snapshot file (empty = disabled)")
	scenarioPath := flag.String("scenario", "", "scenario file or directory to replay on start")
	corsOrigins := flag.String("cors", "", "comma-separated allowed CORS origins (empty = allow all)")
	jsonLogs := flag.Bool("json-logs", false, "emit logs as JSON")
	tick := flag.Duration("tick", 500*time.Millisecond, "strategy quote interval")
	symbolList := flag.String("symbols", "1", "comma-separated symbol ids to quote")
	strategyName := flag.String("strategy", "fixed", "quoting strategy: fixed or skewed")
	base := flag.Float64("base", 100.0, "quote base price in dollars")
	spread := flag.Float64("spread", 0.10, "fixed strategy full spread in dollars")
	minSpread := flag.Float64("min-spread", 0.05, "skewed strategy minimum spread in dollars")
	maxSpread := flag.Float64("max-spread", 0.50, "skewed strategy maximum spread in dollars")
	maxInventory := flag.Int64("max-inventory", 1000, "skewed strategy inventory at full skew")
	size := flag.Uint("size", 100, "quote size")
	maxPosition := flag.Int64("max-position", 10000, "gross position limit per symbol")
	maxLong := flag.Int64("max-long", 5000, "net long limit per symbol")
	maxShort := flag.Int64("max-short", 5000, "net short limit per symbol")
	maxDailyLoss := flag.Float64("max-daily-loss", 100000, "daily loss limit in dollars")
	maxDrawdown := flag.Float64("max-drawdown", 100000, "drawdown limit in dollars")
	flag.Parse()

	log := logrus.New()
	if *jsonLogs {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	symbols := parseSymbols(*symbolList, log)

	l := ledger.New(ledger.Limits{
		MaxPositionSize:  *maxPosition,
		MaxLongPosition:  *maxLong,
		MaxShortPosition: *maxShort,
		MaxDailyLoss:     int64(book.PriceFromDollars(*maxDailyLoss)),
		MaxDrawdown:      int64(book.PriceFromDollars(*maxDrawdown)),
	})
	books := book.NewRegistry()

	// Optional position snapshot: restore on start, flush on shutdown.
	var snapshot *persist.Store
	if *snapshotPath != "" {
		var err error
		snapshot, err = persist.Open(*snapshotPath, persist.DefaultCapacity)
		if err != nil {
			log.WithError(err).Fatal("failed to open position snapshot")
		}
		positions, err := snapshot.Load()
		if err != nil {
			log.WithError(err).Fatal("failed to load position snapshot")
		}
		if len(positions) > 0 {
			l.Restore(positions)
			log.WithField("positions", len(positions)).Info("restored position snapshot")
		}
	}

	var quoter strategy.Strategy
	switch *strategyName {
	case "fixed":
		quoter = strategy.NewFixedSpread(strategy.FixedSpreadConfig{
			Symbols: symbols,
			Base:    book.PriceFromDollars(*base),
			Spread:  book.PriceFromDollars(*spread),
			Size:    book.Quantity(*size),
		})
	case "skewed":
		quoter = strategy.NewInventorySkewed(strategy.InventorySkewedConfig{
			Symbols:      symbols,
			Base:         book.PriceFromDollars(*base),
			MinSpread:    book.PriceFromDollars(*minSpread),
			MaxSpread:    book.PriceFromDollars(*maxSpread),
			MaxInventory: *maxInventory,
			Size:         book.Quantity(*size),
		})
	default:
		log.Fatalf("unknown strategy %q", *strategyName)
	}

	eng := engine.New(books, l, engine.Config{
		TickInterval: *tick,
		Strategies:   []strategy.Strategy{quoter},
	}, log)

	// Optional SQLite fill archive behind the fill observer hook.
	var archive *store.Store
	if *dbPath != "" {
		var err error
		archive, err = store.New(*dbPath)
		if err != nil {
			log.WithError(err).Fatal("failed to open fill archive")
		}
		eng.OnFill(func(tr ledger.Trade) {
			if err := archive.RecordFill(tr); err != nil {
				log.WithError(err).Error("failed to archive fill")
			}
		})
	}

	if *scenarioPath != "" {
		runner := scenario.NewRunner(books, l, log)
		runScenarios(runner, *scenarioPath, log)
	}

	server := api.NewServer(eng, log)
	eng.OnFill(server.BroadcastFill)
	if *corsOrigins != "" {
		origins := strings.Split(*corsOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		server.SetCORSOrigins(origins)
	}

	eng.Start()

	addr := ":" + *port
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     addr,
			"strategy": quoter.Name(),
			"symbols":  symbols,
		}).Info("monitor server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	eng.Stop()
	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http shutdown error")
	}

	if snapshot != nil {
		if err := snapshot.Flush(l.AllPositions()); err != nil {
			log.WithError(err).Error("failed to flush position snapshot")
		} else {
			log.Info("position snapshot flushed")
		}
	}
	if archive != nil {
		if err := archive.SavePositions(l.AllPositions()); err != nil {
			log.WithError(err).Error("failed to archive positions")
		}
		if err := archive.Close(); err != nil {
			log.WithError(err).Error("archive close error")
		}
	}
	log.Info("shutdown complete")
}

func parseSymbols(list string, log *logrus.Logger) []book.SymbolID {
	var symbols []book.SymbolID
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			log.Fatalf("bad symbol id %q", part)
		}
		symbols = append(symbols, book.SymbolID(id))
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols configured")
	}
	return symbols
}

func runScenarios(runner *scenario.Runner, path string, log *logrus.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		log.WithError(err).Fatal("scenario path")
	}

	var results []scenario.Result
	if info.IsDir() {
		results, err = runner.RunDir(path)
	} else {
		var res scenario.Result
		res, err = runner.RunFile(path)
		results = append(results, res)
	}
	if err != nil {
		log.WithError(err).Fatal("scenario run failed")
	}

	for _, res := range results {
		log.WithFields(logrus.Fields{
			"scenario": res.Name,
			"passed":   res.Passed,
			"orders":   res.OrdersProcessed,
			"trades":   res.TradesExecuted,
			"errors":   len(res.Errors),
		}).Info("scenario finished")
	}
}
