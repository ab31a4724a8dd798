// Command payments replays a CSV of ledger events and prints the resulting
// client accounts.
//
//	payments transactions.csv > accounts.csv
//	payments transactions.csv verbose
//
// With the literal second argument "verbose", every record that was skipped
// is reported on stderr. A malformed record aborts the run with exit status
// 1 and nothing on stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/payments/internal/config"
	"github.com/JonMunkholm/payments/internal/core"
	"github.com/JonMunkholm/payments/internal/csv"
	"github.com/JonMunkholm/payments/internal/logging"
)

const verboseArg = "verbose"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(stderr, "usage: payments <input.csv> [verbose]")
		return 2
	}
	path := args[0]
	verbose := len(args) == 2 && args[1] == verboseArg

	if _, err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "loading .env: %v\n", err)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	// stderr stays quiet unless something is fatal or LOG_LEVEL asks otherwise.
	level := cfg.Logging.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	logger := logging.Setup(stderr, level, cfg.Logging.Format)

	f, err := os.Open(path)
	if err != nil {
		logger.Error("cannot open input", "path", path, "error", err)
		return 1
	}
	defer f.Close()

	req := core.RunRequest{Source: path}
	if verbose {
		req.OnFailure = func(row core.FailedRow) {
			fmt.Fprintf(stderr, "line %d: %s,%d,%d: %s\n",
				row.LineNumber, row.Kind, row.Client, row.Tx, row.Reason)
		}
	}

	// UPLOAD_TIMEOUT bounds HTTP runs only; the CLI runs until the input ends
	// or it is interrupted.
	opts := core.OptionsFromConfig(cfg)
	opts.Timeout = 0

	svc := core.NewService(opts, nil)
	res, err := svc.Run(ctx, req, f)
	if err != nil {
		logger.Error("run failed", "path", path, "error", err)
		return 1
	}

	out := bufio.NewWriter(stdout)
	if err := csv.WriteAccounts(out, res.Accounts, svc.AmountPlaces()); err != nil {
		logger.Error("writing accounts", "error", err)
		return 1
	}
	if err := out.Flush(); err != nil {
		logger.Error("writing accounts", "error", err)
		return 1
	}

	logger.Debug("run complete", "events", res.Events, "skipped", res.Failed)
	return 0
}
