package oracle

import (
	"fmt"
	"math/big"
	"time"
)

// Source kinds that survive a restart. Sources wired in-process are
// persisted as KindExternal and must be registered again after a reload.
const (
	KindStatic   = "static"
	KindExternal = "external"
)

// Speccer is implemented by sources whose configuration can be persisted
// and rebuilt with FromSpec.
type Speccer interface {
	Spec() (kind string, params map[string]interface{})
}

func (s *Static) Spec() (string, map[string]interface{}) {
	return KindStatic, map[string]interface{}{
		"price":      s.Price.String(),
		"decimals":   int64(s.Decimals),
		"updated_at": s.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// SpecOf returns the persistable description of a source.
func SpecOf(s Source) (string, map[string]interface{}) {
	if sp, ok := s.(Speccer); ok {
		return sp.Spec()
	}
	return KindExternal, nil
}

// FromSpec rebuilds a source from its persisted description. External
// sources come back as Unavailable until they are registered again.
func FromSpec(kind string, params map[string]interface{}) (Source, error) {
	switch kind {
	case KindStatic:
		price, ok := new(big.Int).SetString(fmt.Sprint(params["price"]), 10)
		if !ok {
			return nil, fmt.Errorf("bad static price %v", params["price"])
		}
		decimals, err := paramInt(params["decimals"])
		if err != nil {
			return nil, err
		}
		updated, _ := time.Parse(time.RFC3339Nano, fmt.Sprint(params["updated_at"]))
		return &Static{Price: price, Decimals: uint8(decimals), UpdatedAt: updated}, nil
	case KindExternal:
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

func paramInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case nil:
		return 0, fmt.Errorf("missing numeric param")
	default:
		var out int64
		_, err := fmt.Sscan(fmt.Sprint(v), &out)
		return out, err
	}
}

// Unavailable is the placeholder for a source that cannot be rebuilt
// from persisted state. Every read fails.
type Unavailable struct{}

func (Unavailable) ReadPrice() (Reading, error) {
	return Reading{}, fmt.Errorf("price source unavailable, register the asset again")
}
