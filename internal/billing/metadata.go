package billing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/madronelabs/formpay/internal/domain"
)

// maxMetadataValueLen is the provider's per-value metadata limit.
const maxMetadataValueLen = 500

// FlattenMetadata converts submission metadata into the flat string map the
// provider accepts. String-list values are joined with commas; values are
// truncated to the provider limit. Keys come back in deterministic order
// because callers log the result.
func FlattenMetadata(in map[string]interface{}) map[string]string {
	if len(in) == 0 {
		return nil
	}

	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = truncate(stringify(v), maxMetadataValueLen)
	}
	return out
}

// MergeMetadata overlays extra pairs onto base without mutating either.
// Extra wins on key collisions.
func MergeMetadata(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}

	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// MetadataKeys returns the sorted key set, for stable log output.
func MetadataKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ShippingFromAddress shapes a submission address into the charge shipping
// block. Returns nil when no address was posted.
func ShippingFromAddress(addr *domain.Address, shippingCents int64) *ShippingDetails {
	if addr == nil {
		return nil
	}
	return &ShippingDetails{
		Name:               addr.Name,
		Line1:              addr.Line1,
		City:               addr.City,
		State:              addr.State,
		Zip:                addr.Zip,
		Country:            addr.Country,
		CarrierAmountCents: shippingCents,
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
