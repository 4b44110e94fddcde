// Package engine wires the send/receive/custody/storage collaborators
// together into one Agent per node, the only product-level component added
// on top of the protocol core.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
	"github.com/dtn7/bpv6engine/pkg/bpos"
	"github.com/dtn7/bpv6engine/pkg/bundle"
	"github.com/dtn7/bpv6engine/pkg/custody"
	"github.com/dtn7/bpv6engine/pkg/dacs"
	"github.com/dtn7/bpv6engine/pkg/metrics"
	"github.com/dtn7/bpv6engine/pkg/receive"
	"github.com/dtn7/bpv6engine/pkg/route"
	"github.com/dtn7/bpv6engine/pkg/send"
	"github.com/dtn7/bpv6engine/pkg/storage"
)

// RetransmitFunc is invoked once per active-bundle record whose retransmit
// deadline has elapsed, so the caller can resend the stored fragment (the
// engine itself doesn't keep a copy of outbound bytes once handed to
// storage).
type RetransmitFunc func(channel string, rec custody.Record)

// channel bundles one custody-routed destination's table and storage
// handle. Send, Receive, IngestAggregateAck and AcknowledgeCustody may be
// called from any goroutine; each mutates the table only while holding the
// channel's NamedLock, which is what gives spec.md §5's "at most one thread
// mutates a channel's table". The goroutine Run starts for the channel only
// reads snapshots of the table.
type channel struct {
	name   string
	route  route.Route
	table  *custody.Table
	parm   any
	period time.Duration

	// nextCID and nextSeq are this channel's persistent custody-ID and
	// creation-sequence counters, spec.md §5's "CIDs are issued strictly
	// increasing". bundle.InFlight is rebuilt fresh per Send, so these can't
	// live on it; atomic.Uint64 covers concurrent Send calls on one channel
	// without taking the channel's NamedLock just to hand out a number.
	nextCID atomic.Uint64
	nextSeq atomic.Uint64
}

// Agent owns the collaborators a single BPv6 node needs: one OS-abstraction
// Runtime, one storage backend, and one active-bundle table per custody
// channel, per spec.md §3's per-channel active-bundle table and §9's
// engine-wiring note.
type Agent struct {
	Runtime *bpos.Runtime
	Store   storage.Store
	Metrics metrics.Sink
	Plan    route.ContactPlan

	Retransmit RetransmitFunc

	channels map[string]*channel
}

// NewAgent wires an Agent from a contact plan, allocating one active-bundle
// table of custodyCapacity slots per route. sink may be metrics.NoOp{} when
// instrumentation isn't needed.
func NewAgent(rt *bpos.Runtime, store storage.Store, sink metrics.Sink, plan route.ContactPlan, custodyCapacity int, retransmitPeriod time.Duration) *Agent {
	a := &Agent{
		Runtime:  rt,
		Store:    store,
		Metrics:  sink,
		Plan:     plan,
		channels: make(map[string]*channel, len(plan.Routes)),
	}
	for name, r := range plan.Routes {
		a.channels[name] = &channel{
			name:   name,
			route:  r,
			table:  custody.NewTable(custodyCapacity),
			parm:   name,
			period: retransmitPeriod,
		}
	}
	return a
}

func (a *Agent) channelFor(name string) (*channel, bool) {
	ch, ok := a.channels[name]
	return ch, ok
}

// Send builds and enqueues a bundle on the named route, recording a custody
// record under the next CID from the channel's counter when the route
// requests custody.
func (a *Agent) Send(routeName string, payload []byte, timeout time.Duration) (send.Result, bpevent.Flags) {
	var flags bpevent.Flags
	ch, ok := a.channelFor(routeName)
	if !ok {
		flags.Set(bpevent.APIError)
		log.WithField("route", routeName).Warn("engine: send to unknown route")
		return send.Result{}, flags
	}

	b := &bundle.InFlight{Route: ch.route, Attributes: ch.route.Attributes}
	flags |= bundle.Build(b, nil, nil)
	if flags.Has(bpevent.BundleTooLarge) {
		return send.Result{}, flags
	}

	cid := ch.nextCID.Add(1) - 1
	b.PRI.CreateSeq.Value = ch.nextSeq.Add(1) - 1
	sdnv.Mask(&b.PRI.CreateSeq)

	result, fl := send.SendBundle(a.Runtime, b, payload, a.Store, ch.parm, timeout, a.Metrics, cid)
	flags |= fl
	if flags.Has(bpevent.StoreFailure) {
		return result, flags
	}

	if ch.route.Attributes.RequestCustody {
		lock := a.Runtime.Lock(ch.name)
		lock.Lock()
		code := ch.table.Add(custody.Record{
			StorageID:      cid,
			RetransmitTime: int64(result.ExpireTime),
			CID:            cid,
		}, false)
		lock.Unlock()
		if code != bpevent.Success {
			log.WithField("cid", cid).Warn("engine: active-bundle table rejected new custody record")
		}
		a.Metrics.CustodyTableOccupancy(ch.name, ch.table.Count())
	}

	return result, flags
}

// Receive runs the receive path for a bundle arriving on the named channel,
// forwarding it (re-enqueuing with the rebuilt header) when the receive
// path decides to, and recording a custody record when the inbound bundle
// carried a custody request.
func (a *Agent) Receive(channelName string, buf []byte) (receive.Result, bpevent.Flags) {
	var flags bpevent.Flags
	ch, ok := a.channelFor(channelName)
	if !ok {
		flags.Set(bpevent.APIError)
		log.WithField("channel", channelName).Warn("engine: receive on unknown channel")
		return receive.Result{}, flags
	}

	result, fl := receive.ReceiveBundle(a.Runtime, ch.route.Local, ch.route.Attributes, buf)
	flags |= fl
	a.Metrics.BundleReceived()
	if flags.Has(bpevent.FailedIntegrityCheck) {
		a.Metrics.IntegrityFailure()
	}

	switch result.Code {
	case bpevent.PendingForward:
		if result.Forward != nil {
			// A forwarded bundle's CTEB, if any, was already spliced into its
			// header by the receive path with the original CID preserved; it
			// carries no fresh custody request of its own, so there's no new
			// CID for this channel to mint.
			_, sfl := send.SendBundle(a.Runtime, result.Forward.Bundle, result.Forward.Payload, a.Store, ch.parm, 0, a.Metrics, 0)
			flags |= sfl
		}
	case bpevent.PendingExpiration, bpevent.ErrGeneric:
		a.Metrics.BundleDropped(flags.String())
	}

	if result.HasCustody {
		lock := a.Runtime.Lock(ch.name)
		lock.Lock()
		ch.table.Add(custody.Record{
			StorageID: result.Custody.CID,
			CID:       result.Custody.CID,
		}, false)
		lock.Unlock()
		a.Metrics.CustodyTableOccupancy(ch.name, ch.table.Count())
	}

	return result, flags
}

// AcknowledgeCustody removes cid from channelName's active-bundle table and
// tells storage to delete the fragment it was holding, the per-CID action
// pkg/dacs.ReceiveAck invokes once for every CID an ACS acknowledges.
func (a *Agent) AcknowledgeCustody(channelName string, cid uint64) bpevent.Code {
	ch, ok := a.channelFor(channelName)
	if !ok {
		return bpevent.ErrGeneric
	}

	lock := a.Runtime.Lock(ch.name)
	lock.Lock()
	rec, code := ch.table.Remove(cid)
	lock.Unlock()
	if code != bpevent.Success {
		return code
	}

	a.Metrics.CustodyTableOccupancy(ch.name, ch.table.Count())
	if err := a.Store.Delete(ch.parm, rec.CID, 0); err != nil {
		log.WithError(err).WithField("cid", cid).Warn("engine: storage rejected delete for acknowledged custody")
		return bpevent.ErrGeneric
	}
	return bpevent.Success
}

// IngestAggregateAck parses an ACS body received on channelName and removes
// every CID it acknowledges from that channel's active-bundle table.
func (a *Agent) IngestAggregateAck(channelName string, body []byte) (numAcked int, flags bpevent.Flags) {
	ch, ok := a.channelFor(channelName)
	if !ok {
		flags.Set(bpevent.APIError)
		return 0, flags
	}
	return dacs.ReceiveAck(body, func(parm any, cid uint64) bpevent.Code {
		return a.AcknowledgeCustody(parm.(string), cid)
	}, ch.name)
}

// Run starts one goroutine per configured custody channel, each sweeping
// its own active-bundle table for records past their retransmit deadline
// and invoking Retransmit for them, until ctx is canceled. The sweep only
// reads a snapshot of the table taken under the channel's NamedLock; the
// table is mutated by Send, Receive and AcknowledgeCustody, each under that
// same lock.
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range a.channels {
		ch := ch
		g.Go(func() error {
			return a.runChannel(ctx, ch)
		})
	}
	return g.Wait()
}

func (a *Agent) runChannel(ctx context.Context, ch *channel) error {
	period := ch.period
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	log.WithField("channel", ch.name).Info("engine: started custody channel worker")
	for {
		select {
		case <-ctx.Done():
			log.WithField("channel", ch.name).Info("engine: stopped custody channel worker")
			return nil
		case <-ticker.C:
			a.sweepRetransmits(ch)
		}
	}
}

// sweepRetransmits scans every occupied slot (not just the oldest, which is
// all Table.Next exposes) for records past their deadline. Slots is a
// snapshot copy, so Retransmit runs with the channel's lock released,
// keeping the lock's critical section to the table read alone.
func (a *Agent) sweepRetransmits(ch *channel) {
	seconds, err := a.Runtime.Clock.Now()
	if err != nil {
		log.WithError(err).WithField("channel", ch.name).Warn("engine: unreliable clock during retransmit sweep")
		return
	}

	lock := a.Runtime.Lock(ch.name)
	lock.Lock()
	slots := ch.table.Slots()
	lock.Unlock()

	if a.Retransmit == nil {
		return
	}
	for _, rec := range slots {
		if rec.StorageID == custody.VacantStorageID {
			continue
		}
		if rec.RetransmitTime > 0 && rec.RetransmitTime <= seconds {
			a.Retransmit(ch.name, rec)
		}
	}
}
