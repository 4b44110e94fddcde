// Command bpagent loads a contact plan and runs a BPv6 engine agent:
// one active-bundle table per configured route, a file-backed storage
// queue, and a background goroutine per route that logs a warning for each
// custody record whose retransmit time has passed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bpv6engine/pkg/bpos"
	"github.com/dtn7/bpv6engine/pkg/custody"
	"github.com/dtn7/bpv6engine/pkg/engine"
	"github.com/dtn7/bpv6engine/pkg/metrics"
	"github.com/dtn7/bpv6engine/pkg/route"
	"github.com/dtn7/bpv6engine/pkg/storage"
)

var defaultContactPlan = "contact-plan.ini"
var defaultStoreDir = "./bpagent-store"

func main() {
	log.SetLevel(log.InfoLevel)

	planPath := flag.String("c", defaultContactPlan, "contact plan INI file")
	storeDir := flag.String("store", defaultStoreDir, "directory for stored fragments")
	custodyCapacity := flag.Int("custody-slots", 64, "active-bundle table capacity per route")
	retransmitPeriod := flag.Duration("retransmit-period", 30*time.Second, "custody retransmit sweep interval")
	sendRoute := flag.String("send", "", "if set, send the bytes on stdin over this route and exit")
	flag.Parse()

	plan, err := loadPlan(*planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bpagent: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewFileStore(*storeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bpagent: could not open storage directory %v: %v\n", *storeDir, err)
		os.Exit(1)
	}

	rt := bpos.NewRuntime(bpos.NewSystemClock(), bpos.NewLogger(nil))
	sink := metrics.NoOp{}
	agent := engine.NewAgent(rt, store, sink, *plan, *custodyCapacity, *retransmitPeriod)
	agent.Retransmit = func(channel string, rec custody.Record) {
		log.WithFields(log.Fields{"channel": channel, "cid": rec.CID}).
			Warn("bpagent: custody record overdue for retransmit")
	}

	if *sendRoute != "" {
		runSend(agent, *sendRoute)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("bpagent: shutting down")
		cancel()
	}()

	log.WithField("routes", len(plan.Routes)).Info("bpagent: starting")
	if err := agent.Run(ctx); err != nil {
		log.WithError(err).Error("bpagent: agent run failed")
		os.Exit(1)
	}
}

func runSend(agent *engine.Agent, routeName string) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}

	result, flags := agent.Send(routeName, buf, 5*time.Second)
	if flags != 0 {
		log.WithField("flags", flags.String()).Warn("bpagent: send completed with warnings")
	}
	log.WithFields(log.Fields{"fragments": result.Fragments, "bundle_size": result.BundleSize}).
		Info("bpagent: bundle sent")
}

func loadPlan(path string) (*route.ContactPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open contact plan: %w", err)
	}
	defer f.Close()
	return route.Load(f)
}
