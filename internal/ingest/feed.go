// Package ingest drives venue.Venue.Update from an upstream streaming
// account-subscription feed, routing each update through the account index
// built at boot. Grounded on the teacher's internal/providers/kraken
// websocket client (connect/subscribe/message-loop/reconnect shape).
package ingest

import (
	"context"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// AccountUpdate is one decoded message from the upstream feed: an account's
// new blob as of slot.
type AccountUpdate struct {
	AccountKey venue.Key
	Blob       venue.AccountBlob
	Slot       uint64
}

// Feed is the upstream account-subscription abstraction (spec §6): a
// filter request naming the keys of interest, and a lazy, unbounded
// sequence of updates. The system assumes per-account in-order delivery and
// no synthetic updates; the returned channel is closed when the stream ends
// or ctx is canceled.
type Feed interface {
	Subscribe(ctx context.Context, keys []venue.Key) (<-chan AccountUpdate, error)
}
