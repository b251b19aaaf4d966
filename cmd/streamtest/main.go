// streamtest is a diagnostic tool that connects to the streaming feed,
// subscribes to the given symbols, and prints everything it receives.
// Useful for verifying credentials and feed entitlements without running
// the full daemon.
//
// Usage:
//
//	streamtest -symbols AAPL,MSFT,SPY
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quotelab/watchfeed/internal/config"
	"github.com/quotelab/watchfeed/internal/model"
	"github.com/quotelab/watchfeed/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/feedd.local.yaml", "path to config file")
	symbolList := flag.String("symbols", "SPY", "comma-separated symbols to subscribe")
	quotes := flag.Bool("quotes", false, "print quotes as well (noisy)")
	duration := flag.Duration("duration", 0, "exit after this long (0 = run until interrupted)")
	flag.Parse()

	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	symbols := strings.Split(strings.ToUpper(strings.ReplaceAll(*symbolList, " ", "")), ",")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	feed := stream.NewFeed(stream.Config{
		URL:    cfg.API.WSURL + "/" + cfg.API.Feed,
		Key:    cfg.API.KeyID,
		Secret: cfg.API.Secret,
	}, nil, logger)
	defer feed.Close()

	var trades, bars int
	handler := stream.Handler{
		OnTrade: func(t model.Tick) {
			trades++
			fmt.Printf("%s TRADE %-6s %10.2f x%-6d %s\n",
				time.Now().Format("15:04:05.000"), t.Symbol, t.Price, t.Size, t.Exchange)
		},
		OnBar: func(b model.Bar) {
			bars++
			fmt.Printf("%s BAR   %-6s o=%.2f h=%.2f l=%.2f c=%.2f v=%d\n",
				time.Now().Format("15:04:05.000"), b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume)
		},
	}
	if *quotes {
		handler.OnQuote = func(q model.QuoteSnapshot) {
			fmt.Printf("%s QUOTE %-6s bid %.2f x%-5d ask %.2f x%-5d\n",
				time.Now().Format("15:04:05.000"), q.Symbol, q.BidPrice, q.BidSize, q.AskPrice, q.AskSize)
		}
	}

	logger.Info("subscribing", "url", cfg.API.WSURL, "feed", cfg.API.Feed, "symbols", symbols)
	if err := feed.Subscribe(ctx, symbols, handler); err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	state := feed.Health()
	logger.Info("session summary",
		"trades", trades,
		"bars", bars,
		"state", state.State,
		"reconnects", state.ReconnectAttempts,
	)
}
