// Command eau2-cluster reproduces SPEC_FULL.md §8 scenario 2: a 3-node
// producer/counter/summarizer pipeline driven over real sockets.
//
//	node 0 writes vals=[0..99] under ("main",0) and 4950.0 under ("ck",0)
//	node 1 wait_and_gets "main", recomputes the sum, writes it under ("verif",0)
//	node 2 wait_and_gets "ck" and "verif" and asserts they're equal
//
// Usage: run three instances with -i 0, -i 1, -i 2 (same -n 3).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eau2/eau2/codec"
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
	f, err := parseDriverFlags("eau2-cluster", 3, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eau2-cluster: %v\n", err)
		return 2
	}

	cfg := kv.DefaultConfig()
	cfg.Index, cfg.N = f.Index, f.N
	if f.Small {
		cfg.ChunkSize = 10
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "eau2-cluster: %v\n", err)
		return 1
	}

	logger := log.Default().Module("eau2-cluster")

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

	switch cfg.Index {
	case 0:
		return runProducer(ctx, store, cfg.ChunkSize, logger, f.Small)
	case 1:
		return runCounter(ctx, store, cfg.ChunkSize, logger)
	default:
		return runSummarizer(ctx, store, cfg.ChunkSize, logger)
	}
}

func runProducer(ctx context.Context, store *kv.Store, chunkSize int, logger *log.Logger, small bool) int {
	n := 100
	if small {
		n = 10
	}
	vals := make([]float32, n)
	var want float32
	for i := range vals {
		vals[i] = float32(i)
		want += vals[i]
	}
	if _, err := dataframe.FromFloatArray(ctx, kv.NewKey("main", 0), store, chunkSize, vals); err != nil {
		logger.Error("writing main", "err", err)
		return 1
	}
	if _, err := dataframe.FromFloatScalar(ctx, kv.NewKey("ck", 0), store, chunkSize, want); err != nil {
		logger.Error("writing ck", "err", err)
		return 1
	}
	fmt.Printf("producer: wrote %d values, checksum %.1f\n", n, want)
	return 0
}

func runCounter(ctx context.Context, store *kv.Store, chunkSize int, logger *log.Logger) int {
	blob, err := store.WaitAndGet(ctx, kv.NewKey("main", 0))
	if err != nil {
		logger.Error("wait_and_get main", "err", err)
		return 1
	}
	df, err := dataframe.DecodeDataframe(codec.NewReader(blob), store, kv.NewKey("main", 0), chunkSize)
	if err != nil {
		logger.Error("decoding main", "err", err)
		return 1
	}
	sum := &sumFloatRower{}
	if err := df.Map(ctx, sum); err != nil {
		logger.Error("summing main", "err", err)
		return 1
	}
	if _, err := dataframe.FromFloatScalar(ctx, kv.NewKey("verif", 0), store, chunkSize, sum.Total); err != nil {
		logger.Error("writing verif", "err", err)
		return 1
	}
	fmt.Printf("counter: recomputed sum %.1f\n", sum.Total)
	return 0
}

func runSummarizer(ctx context.Context, store *kv.Store, chunkSize int, logger *log.Logger) int {
	ckBlob, err := store.WaitAndGet(ctx, kv.NewKey("ck", 0))
	if err != nil {
		logger.Error("wait_and_get ck", "err", err)
		return 1
	}
	verifBlob, err := store.WaitAndGet(ctx, kv.NewKey("verif", 0))
	if err != nil {
		logger.Error("wait_and_get verif", "err", err)
		return 1
	}
	ckDf, err := dataframe.DecodeDataframe(codec.NewReader(ckBlob), store, kv.NewKey("ck", 0), chunkSize)
	if err != nil {
		logger.Error("decoding ck", "err", err)
		return 1
	}
	verifDf, err := dataframe.DecodeDataframe(codec.NewReader(verifBlob), store, kv.NewKey("verif", 0), chunkSize)
	if err != nil {
		logger.Error("decoding verif", "err", err)
		return 1
	}
	ck, err := ckDf.GetFloat(ctx, 0, 0)
	if err != nil {
		logger.Error("reading ck", "err", err)
		return 1
	}
	verif, err := verifDf.GetFloat(ctx, 0, 0)
	if err != nil {
		logger.Error("reading verif", "err", err)
		return 1
	}
	if ck != verif {
		fmt.Printf("FAILURE: ck=%.1f verif=%.1f\n", ck, verif)
		return 1
	}
	fmt.Println("SUCCESS")
	return 0
}
