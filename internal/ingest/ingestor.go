package ingest

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sawpanic/dexrouter/internal/registry"
	"github.com/sawpanic/dexrouter/internal/venue"
)

// Ingestor drives registry.Registry.Update from a Feed. Per message it
// writes the blob into the account store, looks up the owning venue in the
// account index, and — if found — calls Update through the registry mutex.
// No batching; each message is applied immediately, and updates for a
// given account are applied in delivery order since the read loop and this
// consumer are both single-threaded over one channel (spec §4.4/§5).
type Ingestor struct {
	feed  Feed
	reg   *registry.Registry
	store *registry.AccountStore
	log   zerolog.Logger

	updatesTotal   prometheus.Counter
	droppedTotal   prometheus.Counter
	updateFailures prometheus.Counter

	bus      Publisher
	busTopic string
}

// Metrics groups the prometheus collectors the ingestor increments;
// callers register these once with their registerer.
type Metrics struct {
	UpdatesTotal   prometheus.Counter
	DroppedTotal   prometheus.Counter
	UpdateFailures prometheus.Counter
}

// New builds an Ingestor over feed, writing into store and driving updates
// through reg via its account index.
func New(feed Feed, reg *registry.Registry, store *registry.AccountStore, metrics Metrics, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		feed:           feed,
		reg:            reg,
		store:          store,
		log:            log.With().Str("component", "ingest").Logger(),
		updatesTotal:   metrics.UpdatesTotal,
		droppedTotal:   metrics.DroppedTotal,
		updateFailures: metrics.UpdateFailures,
	}
}

// WithFanout attaches an optional message-bus publisher: every applied or
// dropped update is additionally announced on topic, independent of the
// venue-update path (SPEC_FULL.md §4.4 supplement). Passing a nil bus is a
// no-op, matching the zero-value Ingestor's default of no fan-out.
func (in *Ingestor) WithFanout(bus Publisher, topic string) *Ingestor {
	in.bus = bus
	in.busTopic = topic
	return in
}

// Run subscribes to the feed for every account named in the registry's
// index and applies updates until the stream ends or ctx is canceled, at
// which point it returns cleanly.
func (in *Ingestor) Run(ctx context.Context) error {
	updates, err := in.feed.Subscribe(ctx, in.reg.Index().Keys())
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			in.apply(ctx, update)
		}
	}
}

func (in *Ingestor) apply(ctx context.Context, update AccountUpdate) {
	in.store.Set(update.AccountKey, update.Blob)
	inc(in.updatesTotal)

	venueKey, ok := in.reg.Index().Owner(update.AccountKey)
	if !ok {
		// Unsolicited update: dropped, not an error (spec §4.4 step 3).
		inc(in.droppedTotal)
		in.publish(ctx, newEnvelope(update, venue.Key{}, false))
		return
	}

	slot := update.Slot
	if err := in.reg.Update(venueKey, in.store, &slot); err != nil {
		// Logged and skipped inside Registry.Update already; no retry here,
		// the next delivered update re-drives the venue.
		inc(in.updateFailures)
		in.publish(ctx, newEnvelope(update, venueKey, false))
		return
	}
	in.publish(ctx, newEnvelope(update, venueKey, true))
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
