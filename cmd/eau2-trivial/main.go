// Command eau2-trivial reproduces SPEC_FULL.md §8 scenario 1: a single
// node builds a 100-value float column, reads one value back directly,
// then sums the whole column through Map.
//
// Usage:
//
//	eau2-trivial [-i node-index] [-n num-nodes] [-v]
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
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
	f, err := parseDriverFlags("eau2-trivial", 1, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eau2-trivial: %v\n", err)
		return 2
	}

	cfg := kv.DefaultConfig()
	cfg.Index, cfg.N = f.Index, f.N
	if f.Small {
		cfg.ChunkSize = 10
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "eau2-trivial: %v\n", err)
		return 1
	}

	logger := log.Default().Module("eau2-trivial")

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

	n := 100
	if f.Small {
		n = 10
	}
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i)
	}

	key := kv.NewKey("triv", 0)
	df, err := dataframe.FromFloatArray(ctx, key, store, cfg.ChunkSize, vals)
	if err != nil {
		logger.Error("building dataframe", "err", err)
		return 1
	}

	got, err := df.GetFloat(ctx, 0, 1)
	if err != nil {
		logger.Error("reading row 1", "err", err)
		return 1
	}
	if got != 1.0 {
		logger.Error("row 1 mismatch", "got", got, "want", 1.0)
		return 1
	}

	sum := &sumFloatRower{}
	if err := df.Map(ctx, sum); err != nil {
		logger.Error("map", "err", err)
		return 1
	}
	want := float32(n*(n-1)) / 2
	if sum.Total != want {
		logger.Error("sum mismatch", "got", sum.Total, "want", want)
		return 1
	}

	fmt.Printf("SUCCESS: row[1]=%.1f sum=%.1f\n", got, sum.Total)
	return 0
}
