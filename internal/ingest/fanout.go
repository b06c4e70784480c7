package ingest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// Envelope is the fan-out message published for every account update the
// ingestor handles (Applied is false when no venue applied it),
// independent of the venue-update path (SPEC_FULL.md §4.4
// supplement). Shape grounded on the teacher's internal/stream.Envelope
// (timestamp/source/payload/checksum), trimmed to the fields an ingest
// observer actually needs instead of the teacher's generic multi-tier
// market-data envelope.
type Envelope struct {
	Timestamp  time.Time `json:"ts"`
	AccountKey string    `json:"account_key"`
	VenueKey   string    `json:"venue_key,omitempty"`
	Slot       uint64    `json:"slot"`
	Applied    bool      `json:"applied"`
}

func newEnvelope(update AccountUpdate, venueKey venue.Key, applied bool) Envelope {
	var vk string
	if applied {
		vk = venueKey.String()
	}
	return Envelope{
		Timestamp:  time.Now(),
		AccountKey: hex.EncodeToString(update.AccountKey[:]),
		VenueKey:   vk,
		Slot:       update.Slot,
		Applied:    applied,
	}
}

// Publisher fans an Envelope out to a message bus topic. Grounded on the
// teacher's internal/stream.EventBus.Publish, narrowed to the one
// operation the ingestor needs (the teacher's admin/consumer surface has
// no fan-out consumer inside this pipeline).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

func (in *Ingestor) publish(ctx context.Context, env Envelope) {
	if in.bus == nil {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := in.bus.Publish(ctx, in.busTopic, payload); err != nil {
		in.log.Warn().Err(err).Str("topic", in.busTopic).Msg("fan-out publish failed")
	}
}
