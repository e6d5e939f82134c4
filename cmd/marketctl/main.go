package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketbaza/internal/apiclient"
	"marketbaza/internal/apperr"
	"marketbaza/internal/config"
	"marketbaza/internal/session"
)

const usage = `usage: marketctl [flags] <command> [args]

commands:
  login <email> <password>     sign in and remember the session
  logout                       forget the session
  home                         show the screen for the signed-in role
  draft show                   market: show the working set
  draft save <id=qty[:received[:price]]>...
                               market: update rows and save the draft
  draft reset                  market: clear the working set and draft
  order submit [id=qty...]     market: send an order for rows with quantity
  ledger show                  market: show the end-of-day ledger
  ledger submit <field=value>... market: file the ledger for --date
  baza show                    depot: show aggregated quantities
  baza price <id=price>...     depot: price products and commit
  baza approve <order-id>      depot: approve one pending order
  baza clear                   depot: delete all orders and prices
  report [--xlsx file]         admin: daily ledger report for --date
  product add <name>           admin: add a product

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, describe(err))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("marketctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	yes := fs.Bool("yes", false, "skip confirmation prompts")
	market := fs.Int64("market", 0, "market id (depot view or admin acting as a market)")
	date := fs.String("date", time.Now().Format("2006-01-02"), "ledger date, YYYY-MM-DD")
	xlsx := fs.String("xlsx", "", "write the report to this spreadsheet file")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	logger := config.NewLogger(cfg.LogFormat, stderr).With("app", "marketctl")

	kv, closeKV, err := openKV(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeKV()

	sess := session.New(kv)
	if err := sess.Load(ctx); err != nil {
		logger.WarnContext(ctx, "stored session unreadable", "error", err)
	}

	a := &app{
		client: apiclient.New(cfg.APIURL, sess,
			apiclient.WithTimeout(cfg.Timeout),
			apiclient.WithRetries(cfg.Retries),
			apiclient.WithLogger(logger),
		),
		session: sess,
		logger:  logger,
		in:      stdin,
		out:     stdout,
		yes:     *yes,
		market:  *market,
		date:    *date,
		xlsx:    *xlsx,
	}
	return a.dispatch(ctx, fs.Args())
}

// openKV uses Redis when REDIS_ADDR is set and a per-user JSON file
// otherwise. Either way the session survives between invocations.
func openKV(ctx context.Context, cfg config.Client, logger *slog.Logger) (session.KV, func(), error) {
	if cfg.RedisAddr == "" {
		path := cfg.SessionFile
		if path == "" {
			var err error
			if path, err = session.DefaultFilePath(); err != nil {
				return nil, nil, fmt.Errorf("session store: %w", err)
			}
		}
		logger.DebugContext(ctx, "session stored in file", "path", path)
		return session.NewFileKV(path), func() {}, nil
	}
	rkv := session.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rkv.Ping(pingCtx); err != nil {
		_ = rkv.Close()
		return nil, nil, fmt.Errorf("session store: %w", err)
	}
	return rkv, func() {
		if err := rkv.Close(); err != nil {
			logger.Warn("close session store", "error", err)
		}
	}, nil
}

func describe(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.Validation:
			return "error: " + appErr.Message
		case apperr.Network:
			return "error: cannot reach the service, check your connection"
		case apperr.Partial:
			return "warning: " + appErr.Error()
		}
	}
	return "error: " + err.Error()
}
