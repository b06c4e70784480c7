package registry

import "github.com/sawpanic/dexrouter/internal/venue"

// AccountIndex maps an on-chain account key to the single venue that owns
// it, so the ingestor can route one account update straight to the right
// adapter without scanning the registry. Built once at boot from static
// adapters; if two venues declare the same account, the later one in
// catalog order wins and a warning is logged — no correctness in the
// rest of the system relies on account ownership being unique.
type AccountIndex struct {
	owner map[venue.Key]venue.Key
}

// NewAccountIndex builds an empty index.
func NewAccountIndex() *AccountIndex {
	return &AccountIndex{owner: make(map[venue.Key]venue.Key)}
}

// Add records that venueKey owns account, overwriting any prior owner.
func (a *AccountIndex) Add(account, venueKey venue.Key) {
	a.owner[account] = venueKey
}

// Owner returns the venue that owns account, if any.
func (a *AccountIndex) Owner(account venue.Key) (venue.Key, bool) {
	v, ok := a.owner[account]
	return v, ok
}

// Len reports the number of distinct indexed accounts.
func (a *AccountIndex) Len() int {
	return len(a.owner)
}

// Keys returns every account key currently indexed, used to build the
// ingestor's upstream subscription filter at startup.
func (a *AccountIndex) Keys() []venue.Key {
	out := make([]venue.Key, 0, len(a.owner))
	for k := range a.owner {
		out = append(out, k)
	}
	return out
}
