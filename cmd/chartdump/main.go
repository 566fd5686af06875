// cmd/chartdump prints a stored or file-based series aggregated to a
// timeframe, with its fitted viewport and the readout of the newest candle.
//
// Usage:
//
//	chartdump -tf 5m -format yaml
//	chartdump -file candles.json -tf 1h -fit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"ohlcchart/config"
	"ohlcchart/internal/chart/readout"
	"ohlcchart/internal/chart/tfagg"
	"ohlcchart/internal/chart/validate"
	"ohlcchart/internal/chart/viewport"
	"ohlcchart/internal/feed"
	"ohlcchart/internal/logger"
	"ohlcchart/internal/model"
	sqlitestore "ohlcchart/internal/store/sqlite"
)

// Dump is the printed document.
type Dump struct {
	Symbol    string          `json:"symbol" yaml:"symbol"`
	Timeframe string          `json:"timeframe" yaml:"timeframe"`
	Report    validate.Report `json:"report" yaml:"report"`
	Viewport  *model.Viewport `json:"viewport,omitempty" yaml:"viewport,omitempty"`
	Last      *readout.Lines  `json:"last,omitempty" yaml:"last,omitempty"`
	Candles   []model.Candle  `json:"candles,omitempty" yaml:"candles,omitempty"`
}

func main() {
	cfg := config.Load()
	logger.Init("chartdump", cfg.LogLevel)

	file := flag.String("file", "", "Read a JSON or YAML candle file instead of SQLite")
	db := flag.String("db", cfg.SQLitePath, "SQLite database path")
	symbol := flag.String("symbol", cfg.Symbol, "Symbol to read")
	tfFlag := flag.String("tf", cfg.Timeframe.Label, "Timeframe (1m, 5m, 1h, 1D, ...)")
	format := flag.String("format", "json", "Output format: json or yaml")
	fit := flag.Bool("fit", false, "Include the fitted viewport")
	padding := flag.Float64("padding", cfg.Padding, "Fit padding fraction")
	summary := flag.Bool("summary", false, "Omit the candle list")
	flag.Parse()

	tf, err := model.ParseTimeframe(*tfFlag)
	if err != nil {
		fail(err)
	}
	raw, err := load(*file, *db, *symbol)
	if err != nil {
		fail(err)
	}

	if !(*padding >= 0) || math.IsInf(*padding, 0) {
		fail(fmt.Errorf("padding must be a finite non-negative number, got %v", *padding))
	}
	d := build(raw, *symbol, tf, *fit, *padding)
	if *summary {
		d.Candles = nil
	}
	if err := write(os.Stdout, d, *format); err != nil {
		fail(err)
	}
}

func fail(err error) {
	logger.With("chartdump").Error("failed", "error", err)
	os.Exit(1)
}

func load(file, db, symbol string) ([]model.Candle, error) {
	if file != "" {
		candles, _, err := feed.LoadFile(file)
		return candles, err
	}
	r, err := sqlitestore.NewReader(db)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadCandles(context.Background(), symbol, 0, 0)
}

// build normalizes raw, aggregates it to tf and derives the extras.
func build(raw []model.Candle, symbol string, tf model.Timeframe, fit bool, padding float64) Dump {
	series, rep := validate.Normalize(raw)
	agg := tfagg.Aggregate(series, tf.Minutes)

	d := Dump{
		Symbol:    symbol,
		Timeframe: tf.Label,
		Report:    rep,
		Candles:   agg,
	}
	if fit {
		vp := viewport.FitToData(agg, padding)
		d.Viewport = &vp
	}
	if n := len(agg); n > 0 {
		lines := readout.Describe(agg[n-1]).Format()
		d.Last = &lines
	}
	return d
}

func write(w io.Writer, d Dump, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
