// Package catalog parses a venue catalog — a file path or an HTTP(S) URL
// returning a JSON array — into typed venue descriptors. The loader is
// stateless and pure; it never touches the registry.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// ErrInvalidCatalog is returned for any parse failure.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog document")

// ErrUnknownKind is returned when an entry's program_owner does not map to
// a supported venue.Kind. Unknown kinds are rejected fail-fast, never
// silently dropped.
var ErrUnknownKind = errors.New("catalog: unknown program_owner")

// entry is the wire shape of one catalog element.
type entry struct {
	Key          string          `json:"key"`
	ProgramOwner string          `json:"program_owner"`
	KindSpecific json.RawMessage `json:"kind_specific"`
}

// KindMapping is the static table keyed by program_owner (as a hex Key
// string) naming the venue.Kind it instantiates. One entry per supported
// family; unmapped owners make Load fail.
type KindMapping map[string]venue.Kind

// DefaultKindMapping is the router's built-in program_owner -> Kind table,
// empty by default; callers pass their own mapping to NewLoader.
func DefaultKindMapping() KindMapping {
	return KindMapping{}
}

// Loader loads and validates a venue catalog.
type Loader struct {
	mapping KindMapping
	client  *http.Client
}

// NewLoader builds a Loader against the given program_owner -> Kind table.
func NewLoader(mapping KindMapping) *Loader {
	if mapping == nil {
		mapping = DefaultKindMapping()
	}
	return &Loader{
		mapping: mapping,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetTimeout overrides the HTTP client timeout used when source is a URL,
// sourced from the router's catalog config.
func (l *Loader) SetTimeout(d time.Duration) {
	l.client.Timeout = d
}

// Load parses source, which is either a local file path or an http(s) URL,
// into a set of venue descriptors.
func (l *Loader) Load(ctx context.Context, source string) ([]venue.Descriptor, error) {
	raw, err := l.fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return l.parse(raw)
}

func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("catalog fetch: unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}

func (l *Loader) parse(raw []byte) ([]venue.Descriptor, error) {
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	descriptors := make([]venue.Descriptor, 0, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("%w: entry %d missing key", ErrInvalidCatalog, i)
		}
		key, err := venue.KeyFromHex(e.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d key: %v", ErrInvalidCatalog, i, err)
		}

		kind, ok := l.mapping[e.ProgramOwner]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, e.ProgramOwner)
		}
		programID, err := venue.KeyFromHex(e.ProgramOwner)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d program_owner: %v", ErrInvalidCatalog, i, err)
		}

		descriptors = append(descriptors, venue.Descriptor{
			Key:           key,
			ProgramID:     programID,
			Kind:          kind,
			CatalogParams: e.KindSpecific,
		})
	}
	return descriptors, nil
}
