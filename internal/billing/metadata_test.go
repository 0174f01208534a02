package billing

import (
	"strings"
	"testing"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/stretchr/testify/assert"
)

func Test_FlattenMetadata(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]interface{}
		expected map[string]string
	}{
		{
			name:     "nil input",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty input",
			input:    map[string]interface{}{},
			expected: nil,
		},
		{
			name: "strings pass through",
			input: map[string]interface{}{
				"color": "red",
				"size":  "large",
			},
			expected: map[string]string{
				"color": "red",
				"size":  "large",
			},
		},
		{
			name: "string lists join with commas",
			input: map[string]interface{}{
				"toppings": []string{"cheese", "olives"},
			},
			expected: map[string]string{
				"toppings": "cheese, olives",
			},
		},
		{
			name: "interface lists join with commas",
			input: map[string]interface{}{
				"options": []interface{}{"a", "b", "c"},
			},
			expected: map[string]string{
				"options": "a, b, c",
			},
		},
		{
			name: "nil value becomes empty string",
			input: map[string]interface{}{
				"note": nil,
			},
			expected: map[string]string{
				"note": "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FlattenMetadata(tt.input))
		})
	}
}

func Test_FlattenMetadata_TruncatesLongValues(t *testing.T) {
	long := strings.Repeat("x", 600)
	out := FlattenMetadata(map[string]interface{}{"essay": long})

	assert.Len(t, out["essay"], maxMetadataValueLen)
}

func Test_MergeMetadata(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	extra := map[string]string{"b": "override", "c": "3"}

	out := MergeMetadata(base, extra)

	assert.Equal(t, map[string]string{"a": "1", "b": "override", "c": "3"}, out)
	// Inputs are untouched.
	assert.Equal(t, "2", base["b"])
}

func Test_MergeMetadata_BothEmpty(t *testing.T) {
	assert.Nil(t, MergeMetadata(nil, nil))
}

func Test_MetadataKeys_Sorted(t *testing.T) {
	keys := MetadataKeys(map[string]string{"zebra": "1", "apple": "2", "mango": "3"})
	assert.Equal(t, []string{"apple", "mango", "zebra"}, keys)
}

func Test_ShippingFromAddress(t *testing.T) {
	t.Run("nil address", func(t *testing.T) {
		assert.Nil(t, ShippingFromAddress(nil, 500))
	})

	t.Run("full address", func(t *testing.T) {
		addr := &domain.Address{
			Name:    "Ada Lovelace",
			Line1:   "12 Analytical Way",
			City:    "London",
			State:   "",
			Zip:     "N1 9GU",
			Country: "GB",
		}

		out := ShippingFromAddress(addr, 750)

		assert.Equal(t, "Ada Lovelace", out.Name)
		assert.Equal(t, "12 Analytical Way", out.Line1)
		assert.Equal(t, "London", out.City)
		assert.Equal(t, "N1 9GU", out.Zip)
		assert.Equal(t, "GB", out.Country)
		assert.Equal(t, int64(750), out.CarrierAmountCents)
	})
}
