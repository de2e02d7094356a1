package vault

import (
	"fmt"
	"time"

	"vaultd/pkg/oracle"
)

// AssetNative identifies the chain's native currency. It is registered
// at construction at index 0 and can never be removed.
const AssetNative = "native"

// AssetConfig is one registry entry. Supported flips to false on removal,
// the entry itself stays so residual balances remain attributable.
type AssetConfig struct {
	Asset     string
	Decimals  uint8
	Supported bool
	Source    oracle.Source

	listIndex int
}

// Registry maps supported assets to their configuration. Not locked
// internally, the owning worker serializes access.
type Registry struct {
	assets map[string]*AssetConfig
	list   []string // iteration list of active assets, native first
}

func NewRegistry(nativeDecimals uint8, nativeSource oracle.Source) (*Registry, error) {
	if nativeSource == nil {
		return nil, ErrZeroAddress
	}

	r := &Registry{
		assets: map[string]*AssetConfig{},
	}
	r.assets[AssetNative] = &AssetConfig{
		Asset:     AssetNative,
		Decimals:  nativeDecimals,
		Supported: true,
		Source:    nativeSource,
		listIndex: 0,
	}
	r.list = append(r.list, AssetNative)

	return r, nil
}

// Add registers an asset, or reactivates a removed one with the new
// configuration. A synchronous validation read against the source must
// succeed before anything is recorded.
func (r *Registry) Add(asset string, source oracle.Source, decimals uint8, now time.Time) (*AssetConfig, error) {
	if asset == "" {
		return nil, ErrZeroAddress
	}
	if source == nil {
		return nil, ErrZeroAddress
	}

	cfg, ok := r.assets[asset]
	if ok && cfg.Supported {
		return nil, ErrAlreadySupported
	}

	reading, err := source.ReadPrice()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriceSource, err)
	}
	if err := oracle.Validate(reading, now); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriceSource, err)
	}

	if cfg == nil {
		cfg = &AssetConfig{Asset: asset}
		r.assets[asset] = cfg
	}
	cfg.Decimals = decimals
	cfg.Source = source
	cfg.Supported = true
	cfg.listIndex = len(r.list)
	r.list = append(r.list, asset)

	return cfg, nil
}

// Remove deactivates an asset with swap-and-truncate on the iteration
// list, so removal reorders the list. Balances are left untouched.
func (r *Registry) Remove(asset string) (*AssetConfig, error) {
	if asset == AssetNative {
		return nil, ErrNativeAsset
	}

	cfg, ok := r.assets[asset]
	if !ok || !cfg.Supported {
		return nil, ErrTokenNotSupported
	}

	last := len(r.list) - 1
	moved := r.list[last]
	r.list[cfg.listIndex] = moved
	r.assets[moved].listIndex = cfg.listIndex
	r.list = r.list[:last]

	cfg.Supported = false
	cfg.listIndex = -1

	return cfg, nil
}

// Get returns the configuration of an asset, active or removed.
func (r *Registry) Get(asset string) (*AssetConfig, bool) {
	cfg, ok := r.assets[asset]
	return cfg, ok
}

// Active returns the configuration of an asset only while it accepts
// deposits and withdrawals.
func (r *Registry) Active(asset string) (*AssetConfig, bool) {
	cfg, ok := r.assets[asset]
	if !ok || !cfg.Supported {
		return nil, false
	}
	return cfg, ok
}

// ListSupported returns active assets in iteration-list order.
func (r *Registry) ListSupported() []*AssetConfig {
	out := make([]*AssetConfig, 0, len(r.list))
	for _, id := range r.list {
		out = append(out, r.assets[id])
	}
	return out
}

// Len is the number of active assets.
func (r *Registry) Len() int {
	return len(r.list)
}

// snapshotList and restoreList back the worker's rollback path for
// registry mutations that fail after the in-memory change.
func (r *Registry) snapshotList() []string {
	return append([]string(nil), r.list...)
}

func (r *Registry) restoreList(list []string) {
	r.list = list
	for i, id := range list {
		r.assets[id].listIndex = i
	}
}
