// Command brokerlink probes a configured brokerage venue: connect with
// credentials from the environment, then run one read-only check per
// subcommand. It is a smoke tool for connector wiring, not a trading CLI.
//
// Usage:
//
//	brokerlink --venue kraken account
//	brokerlink --venue ibkr --config config.yaml quote AAPL-USD
//	brokerlink setup
//
// Credentials come from <VENUE>_API_KEY / <VENUE>_API_SECRET environment
// variables (plus <VENUE>_ACCOUNT_ID for ibkr), loaded from .env when present.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/connectors"
	"github.com/quantport/brokerlink/internal/domain"
	"github.com/quantport/brokerlink/internal/setup"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config (optional, defaults per venue)")
	venue := flag.String("venue", "kraken", "venue to probe: "+strings.Join(connectors.Venues(), ", "))
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline for the probe")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if args[0] == "setup" {
		if err := setup.RunTUI(); err != nil {
			logger.Fatal("setup failed", zap.Error(err))
		}
		return
	}

	// .env is optional; explicit environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Get(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	conn, err := connectors.New(*venue, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build connector", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	status, err := conn.Connect(ctx, credsFromEnv(*venue))
	if err != nil {
		logger.Fatal("connect failed", zap.String("status", status.String()), zap.Error(err))
	}
	logger.Info("connected", zap.String("venue", conn.Name()), zap.String("status", status.String()))

	if err := run(ctx, conn, args); err != nil {
		logger.Fatal("probe failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(ctx context.Context, conn broker.Connector, args []string) error {
	switch args[0] {
	case "account":
		info, err := conn.GetAccountInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("account %s: balance %s %s, equity %s, %d positions\n",
			info.AccountID, info.Balance, info.Currency, info.Equity, len(info.Positions))
		return nil

	case "positions":
		positions, err := conn.GetPositions(ctx)
		if err != nil {
			return err
		}
		for _, p := range positions {
			fmt.Printf("%-12s %-8s qty %s @ %s, value %s, pnl %s\n",
				p.Symbol, p.AssetType, p.Quantity, p.MarkPrice, p.MarketValue, p.UnrealizedPnl)
		}
		return nil

	case "quote":
		if len(args) < 2 {
			return fmt.Errorf("quote requires a symbol argument")
		}
		q, err := conn.GetQuote(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s bid %s ask %s last %s volume %s\n", q.Symbol, q.Bid, q.Ask, q.Last, q.Volume)
		return nil

	case "orders":
		orders, err := conn.GetOpenOrders(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			fmt.Printf("%s %s %s %s qty %s filled %s status %s\n",
				o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity, o.FilledQuantity, o.Status)
		}
		return nil

	case "history":
		if len(args) < 2 {
			return fmt.Errorf("history requires a symbol argument")
		}
		to := time.Now().UTC()
		from := to.Add(-24 * time.Hour)
		bars, err := conn.GetHistoricalData(ctx, args[1], "1h", from, to)
		if err != nil {
			return err
		}
		for _, b := range bars {
			fmt.Printf("%s o %s h %s l %s c %s v %s\n",
				b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		return nil

	case "validate":
		if len(args) < 2 {
			return fmt.Errorf("validate requires a symbol argument")
		}
		fmt.Printf("%s valid on %s: %v\n", args[1], conn.Name(), conn.ValidateSymbol(ctx, args[1]))
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func credsFromEnv(venue string) domain.Credentials {
	prefix := strings.ToUpper(venue)
	return domain.Credentials{
		APIKey:       os.Getenv(prefix + "_API_KEY"),
		APISecret:    os.Getenv(prefix + "_API_SECRET"),
		AccountID:    os.Getenv(prefix + "_ACCOUNT_ID"),
		SessionToken: os.Getenv(prefix + "_SESSION_TOKEN"),
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: brokerlink [flags] <command> [args]

commands:
  setup                interactive venue and credentials wizard
  account              print account summary
  positions            print open positions
  orders               print open orders
  quote <symbol>       print a market quote
  history <symbol>     print last 24h of hourly bars
  validate <symbol>    check a symbol exists on the venue

`)
	flag.PrintDefaults()
}
