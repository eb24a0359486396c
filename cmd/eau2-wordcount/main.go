// Command eau2-wordcount reproduces SPEC_FULL.md §8 scenario 3: a single
// node builds a two-column (int, string) dataframe, sums the int column
// with Map, and filters it down to values above a threshold.
//
// With -f, the int column is read from a file of whitespace-separated
// integers (bounded by -l bytes) instead of the default 1..10000 sequence;
// parsing any richer format (CSV, etc.) is out of scope (SPEC_FULL.md §1).
//
// Usage:
//
//	eau2-wordcount [-i node-index] [-n num-nodes] [-f file] [-l bytes] [-v]
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/eau2/eau2/dataframe"
	"github.com/eau2/eau2/internal/log"
	"github.com/eau2/eau2/kv"
	"github.com/eau2/eau2/metrics"
	"github.com/eau2/eau2/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseDriverFlags("eau2-wordcount", 1, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eau2-wordcount: %v\n", err)
		return 2
	}

	cfg := kv.DefaultConfig()
	cfg.Index, cfg.N = f.Index, f.N
	if f.Small {
		cfg.ChunkSize = 10
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "eau2-wordcount: %v\n", err)
		return 1
	}

	logger := log.Default().Module("eau2-wordcount")

	ln, err := net.Listen("tcp", cfg.Addresses.Address(cfg.Index))
	if err != nil {
		logger.Error("listen failed", "err", err)
		return 1
	}
	dialer := &transport.TCPDialer{Timeout: cfg.DialTimeout}
	server := transport.NewServer(cfg, dialer, transport.NewTCPListener(ln))
	store := kv.NewStore(cfg, server)
	server.SetHandler(store)

	metricsSrv := metrics.StartPrometheusServer(fmt.Sprintf("127.0.0.%d:9090", cfg.Index+1))
	defer metricsSrv.Shutdown(context.Background())
	reporter := metrics.StartReporter(logger, 10*time.Second)
	defer reporter.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		logger.Error("bootstrap failed", "err", err)
		return 1
	}
	defer server.Close()

	ints, err := loadInts(f, logger)
	if err != nil {
		logger.Error("loading input", "err", err)
		return 1
	}

	threshold := int32(len(ints) / 2)
	writer := &intLabelWriter{vals: ints}
	df, err := dataframe.FromVisitor(ctx, kv.NewKey("wc", 0), store, cfg.ChunkSize, "IS", writer)
	if err != nil {
		logger.Error("building dataframe", "err", err)
		return 1
	}

	sum := &sumIntRower{Col: 0}
	if err := df.Map(ctx, sum); err != nil {
		logger.Error("map", "err", err)
		return 1
	}

	filtered, err := df.Filter(ctx, &aboveIntRower{Col: 0, Threshold: threshold}, kv.NewKey("wc-above", 0))
	if err != nil {
		logger.Error("filter", "err", err)
		return 1
	}

	fmt.Printf("SUCCESS: rows=%d sum=%d above(%d)=%d\n", df.NRows(), sum.Total, threshold, filtered.NRows())
	return 0
}

// loadInts returns f.File's whitespace-separated integers (bounded by
// f.ReadLimit bytes) if -f was given, otherwise the default 1..n sequence
// (n=10000, or 100 under -v).
func loadInts(f driverFlags, logger *log.Logger) ([]int32, error) {
	if f.File == "" {
		n := 10000
		if f.Small {
			n = 100
		}
		vals := make([]int32, n)
		for i := range vals {
			vals[i] = int32(i + 1)
		}
		return vals, nil
	}

	file, err := os.Open(f.File)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.File, err)
	}
	defer file.Close()

	var vals []int32
	scanner := bufio.NewScanner(io.LimitReader(file, int64(f.ReadLimit)))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		tok := scanner.Text()
		if tok == "" {
			continue
		}
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			logger.Warn("skipping unparsable token", "token", tok, "err", err)
			continue
		}
		vals = append(vals, int32(n))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.File, err)
	}
	return vals, nil
}

// intLabelWriter is a dataframe.Writer over a fixed slice of ints, pairing
// each with a synthesized string label ("row-N").
type intLabelWriter struct {
	vals []int32
	i    int
}

func (w *intLabelWriter) Visit(row *dataframe.Row) error {
	if err := row.SetInt(0, w.vals[w.i]); err != nil {
		return err
	}
	if err := row.SetString(1, fmt.Sprintf("row-%d", w.vals[w.i])); err != nil {
		return err
	}
	w.i++
	return nil
}

func (w *intLabelWriter) Done() bool { return w.i >= len(w.vals) }
