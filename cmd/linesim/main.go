// linesim prices a batch of synthetic matches offline and prints the
// summary and predictions as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Billy-Davies-2/frc-line-service/internal/config"
	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/market"
)

var nMatches = flag.Int("n", 10, "`number` of synthetic matches to price")
var seed = flag.Uint64("seed", 0, "random `seed`; 0 draws a fresh one")
var valuationFile = flag.String("config", "", "YAML `file` overriding the valuation constants")
var summaryOnly = flag.Bool("summary", false, "print only the batch summary")

type options struct {
	count         int
	seed          uint64
	valuationFile string
	summaryOnly   bool
}

func main() {
	flag.Parse()

	// stdout carries the JSON result
	logger.Logger = logger.New(os.Stderr, slog.LevelWarn, "text")

	opts := options{
		count:         *nMatches,
		seed:          *seed,
		valuationFile: *valuationFile,
		summaryOnly:   *summaryOnly,
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "linesim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, w io.Writer) error {
	cfg, err := config.LoadValuation(opts.valuationFile)
	if err != nil {
		return err
	}

	svc := market.NewService(market.Options{Valuation: cfg})

	req := market.SimulateRequest{Count: opts.count}
	if opts.seed != 0 {
		req.Seed = &opts.seed
	}

	predictions, err := svc.Simulate(ctx, req)
	if err != nil {
		return err
	}

	out := map[string]interface{}{"summary": market.Summarize(predictions)}
	if !opts.summaryOnly {
		out["predictions"] = predictions
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
