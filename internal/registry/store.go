package registry

import "github.com/sawpanic/dexrouter/internal/venue"

// AccountStore is the mapping Key -> AccountBlob the ingestor writes and
// adapters read during Update. It holds only accounts some adapter has
// declared it needs — never a cache of all chain state. Single writer
// (the ingestor, before calling Registry.Update), single reader per call
// (the adapter being updated, invoked from inside Registry.Update while
// the registry mutex is held for that call's entire duration), by
// construction.
type AccountStore struct {
	accounts map[venue.Key]venue.AccountBlob
}

// NewAccountStore builds an empty store with room for n accounts.
func NewAccountStore(n int) *AccountStore {
	return &AccountStore{accounts: make(map[venue.Key]venue.AccountBlob, n)}
}

// Get implements venue.AccountStore.
func (s *AccountStore) Get(key venue.Key) (venue.AccountBlob, bool) {
	blob, ok := s.accounts[key]
	return blob, ok
}

// Set overwrites the blob for key. Never removes entries.
func (s *AccountStore) Set(key venue.Key, blob venue.AccountBlob) {
	s.accounts[key] = blob
}

// Len reports how many accounts are currently cached.
func (s *AccountStore) Len() int {
	return len(s.accounts)
}
