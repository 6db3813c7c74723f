package discount

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// CurrentCollectionVersion is the schema every stored config is migrated to
const CurrentCollectionVersion = 2

// CollectionConfig is the normalised form of a collection's JSON config
type CollectionConfig struct {
	Version     int     `json:"version"`
	CategoryIDs []int64 `json:"categoryIds"`
	ProductIDs  []int64 `json:"productIds"`
}

// rawCollectionConfig accepts every key spelling seen in stored configs
type rawCollectionConfig struct {
	Version *int `json:"version"`

	CategoryIDs idList `json:"categoryIds"`
	ProductIDs  idList `json:"productIds"`

	// version 0
	Categories       idList `json:"categories"`
	Products         idList `json:"products"`
	LegacyCategories idList `json:"category_ids"`
	LegacyProducts   idList `json:"product_ids"`
}

// ParseCollectionConfig decodes a stored config and migrates it to the
// current version. Configs without a version are treated as version 0.
func ParseCollectionConfig(data []byte) (CollectionConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return CollectionConfig{Version: CurrentCollectionVersion}, nil
	}

	var raw rawCollectionConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return CollectionConfig{}, fmt.Errorf("decode collection config: %w", err)
	}

	version := 0
	if raw.Version != nil {
		version = *raw.Version
	}

	switch version {
	case 0, 1:
		return migrateV0(raw), nil
	case CurrentCollectionVersion:
		return CollectionConfig{
			Version:     CurrentCollectionVersion,
			CategoryIDs: raw.CategoryIDs,
			ProductIDs:  raw.ProductIDs,
		}, nil
	default:
		return CollectionConfig{}, fmt.Errorf("unsupported collection config version %d", version)
	}
}

func migrateV0(raw rawCollectionConfig) CollectionConfig {
	return CollectionConfig{
		Version:     CurrentCollectionVersion,
		CategoryIDs: union(raw.CategoryIDs, raw.Categories, raw.LegacyCategories),
		ProductIDs:  union(raw.ProductIDs, raw.Products, raw.LegacyProducts),
	}
}

func union(lists ...idList) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, l := range lists {
		for _, id := range l {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// idList decodes an array of IDs written either as numbers or as numeric
// strings
type idList []int64

func (l *idList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	out := make(idList, 0, len(items))
	for _, item := range items {
		var n int64
		if err := json.Unmarshal(item, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("invalid id %s", item)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", s)
		}
		out = append(out, n)
	}
	*l = out
	return nil
}
