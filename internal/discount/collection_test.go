package discount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollectionConfig(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		categories []int64
		products   []int64
	}{
		{"current", `{"version": 2, "categoryIds": [1, 2], "productIds": [9]}`, []int64{1, 2}, []int64{9}},
		{"legacy short keys", `{"categories": [1], "products": [5, 6]}`, []int64{1}, []int64{5, 6}},
		{"legacy snake keys", `{"category_ids": ["7"], "product_ids": ["8"]}`, []int64{7}, []int64{8}},
		{"legacy mixed and duplicated", `{"categories": [1, "1"], "category_ids": [2]}`, []int64{1, 2}, nil},
		{"empty", ``, nil, nil},
		{"null", `null`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseCollectionConfig([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, CurrentCollectionVersion, cfg.Version)
			assert.Equal(t, tt.categories, cfg.CategoryIDs)
			assert.Equal(t, tt.products, cfg.ProductIDs)
		})
	}
}

func TestParseCollectionConfigRejects(t *testing.T) {
	_, err := ParseCollectionConfig([]byte(`{"version": 3, "categoryIds": [1]}`))
	assert.Error(t, err)

	_, err = ParseCollectionConfig([]byte(`{"categories": ["abc"]}`))
	assert.Error(t, err)

	_, err = ParseCollectionConfig([]byte(`not json`))
	assert.Error(t, err)
}
