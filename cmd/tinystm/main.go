// Command tinystm runs one ledger block through the executor, either
// as a built-in demo, from a JSON ops file, or as a long-running
// gRPC/batch-intake server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"

	"github.com/kvexec/tinystm"
	"github.com/kvexec/tinystm/internal/auditlog"
	"github.com/kvexec/tinystm/internal/batchsvc"
	"github.com/kvexec/tinystm/internal/blockid"
	"github.com/kvexec/tinystm/internal/execconfig"
	"github.com/kvexec/tinystm/internal/kvtxn"
	"github.com/kvexec/tinystm/internal/rpc"
)

var (
	flagDemo   = flag.Bool("demo", false, "run the built-in demo block instead of reading -ops")
	flagOps    = flag.String("ops", "", "path to a JSON file containing a []kvtxn.Op block")
	flagGRPC   = flag.String("grpc", "", "gRPC listen address (empty to disable)")
	flagConfig = flag.String("config", "", "path to a YAML tuning file (empty uses defaults)")
	flagAudit  = flag.String("audit", "", "path to a sqlite audit log (empty disables auditing)")
	flagV      = flag.Bool("v", false, "verbose stats logging")
)

func main() {
	flag.Parse()

	cfg := execconfig.Default()
	if *flagConfig != "" {
		loaded, err := execconfig.Load(*flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tinystm:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var stats *tinystm.StatsLogger
	if *flagV {
		stats = tinystm.NewStatsLogger(nil)
	}

	var audit *auditlog.Log
	if *flagAudit != "" {
		a, err := auditlog.Open(*flagAudit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tinystm:", err)
			os.Exit(1)
		}
		defer a.Close()
		audit = a
	}

	switch {
	case *flagGRPC != "":
		runServer(cfg, *flagGRPC)
	case *flagDemo:
		runOne(cfg, stats, audit, demoOps())
	case *flagOps != "":
		ops, err := loadOps(*flagOps)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tinystm:", err)
			os.Exit(1)
		}
		runOne(cfg, stats, audit, ops)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func loadOps(path string) ([]kvtxn.Op, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var ops []kvtxn.Op
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ops, nil
}

func demoOps() []kvtxn.Op {
	return []kvtxn.Op{
		{Writes: map[string]int64{"alice": 100}},
		{Writes: map[string]int64{"bob": 50}},
		{Reads: []string{"alice"}, Writes: map[string]int64{"alice": -20}},
		{Reads: []string{"bob"}, Writes: map[string]int64{"bob": 20}},
	}
}

func runOne(cfg execconfig.Config, stats *tinystm.StatsLogger, audit *auditlog.Log, ops []kvtxn.Op) {
	id := blockid.New()
	ctx := tinystm.WithMaxWorkers(context.Background(), cfg.MaxWorkers)

	start := time.Now()
	statuses, err := tinystm.ExecuteBlock[string, int64, struct{}, kvtxn.Op, kvtxn.Receipt, string](
		ctx, kvtxn.Task{}, kvtxn.Inferencer{}, struct{}{}, ops, stats,
	)
	elapsed := time.Since(start)

	if audit != nil {
		summary := auditlog.Summary{
			ID:       id,
			NumTxns:  len(ops),
			Duration: elapsed,
			RanAt:    time.Now(),
		}
		if err != nil {
			summary.Err = err.Error()
		} else {
			summary.StopVersion = len(statuses)
		}
		if recErr := audit.Record(summary); recErr != nil {
			fmt.Fprintln(os.Stderr, "tinystm: audit:", recErr)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tinystm: block %s failed: %v\n", id, err)
		os.Exit(1)
	}

	fmt.Printf("block %s: %d slots\n", id, len(statuses))
	for i, st := range statuses {
		switch st.Kind {
		case tinystm.StatusAbort:
			fmt.Printf("  [%d] abort: %s\n", i, st.Err)
		default:
			fmt.Printf("  [%d] %v\n", i, st.Out.Balances)
		}
	}
}

func runServer(cfg execconfig.Config, addr string) {
	logger := log.Default()

	svc := batchsvc.New(cfg.Batch, logger)
	if err := svc.Start(); err != nil {
		logger.Fatalf("tinystm: batchsvc: %v", err)
	}
	defer svc.Stop()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("tinystm: listen %s: %v", addr, err)
	}

	grpcServer := grpc.NewServer()
	rpc.Register(grpcServer, rpc.NewServer(logger))

	logger.Printf("tinystm: gRPC listening on %s", addr)
	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatalf("tinystm: serve: %v", err)
	}
}
