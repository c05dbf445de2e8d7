package repository

import (
	"auto-advisor-go/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

type inMemoryCatalogRepository struct {
	mu    sync.RWMutex
	items []model.CatalogItem
}

// NewInMemoryCatalogRepository 返回基于切片的车源目录，过滤语义与 ES 实现一致。
func NewInMemoryCatalogRepository(items []model.CatalogItem) CatalogRepository {
	return &inMemoryCatalogRepository{items: append([]model.CatalogItem(nil), items...)}
}

// LoadCatalogFile 从 JSON 文件读取车源列表。
func LoadCatalogFile(path string) ([]model.CatalogItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var items []model.CatalogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return items, nil
}

func (r *inMemoryCatalogRepository) Query(ctx context.Context, criteria model.SearchCriteria, limit int) ([]model.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []model.CatalogItem
	for _, it := range r.items {
		if Matches(it, criteria) {
			out = append(out, it)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Price < out[j].Price
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryCatalogRepository) Sample(ctx context.Context, limit int) ([]model.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := append([]model.CatalogItem(nil), r.items...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.After(out[j].AddedAt)
		}
		return out[i].Rating > out[j].Rating
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Matches 判断车源是否满足全部条件，关键词只需命中其一。
func Matches(it model.CatalogItem, c model.SearchCriteria) bool {
	eq := func(want, got string) bool { return want == "" || strings.EqualFold(want, got) }
	if !eq(c.Brand, it.Brand) || !eq(c.Model, it.Model) || !eq(c.Category, it.Category) ||
		!eq(c.Color, it.Color) || !eq(c.FuelType, it.FuelType) || !eq(c.Gearbox, it.Gearbox) ||
		!eq(c.DriveType, it.DriveType) || !eq(c.City, it.City) {
		return false
	}
	if c.Excludes(it.Brand) {
		return false
	}
	if c.MinPrice > 0 && it.Price < c.MinPrice {
		return false
	}
	if c.MaxPrice > 0 && it.Price > c.MaxPrice {
		return false
	}
	if c.MinYear > 0 && it.Year < c.MinYear {
		return false
	}
	if c.MaxYear > 0 && it.Year > c.MaxYear {
		return false
	}
	for _, f := range c.MustHaveFeatures {
		if !containsFold(it.Features, f) {
			return false
		}
	}
	if len(c.Keywords) > 0 {
		haystack := strings.ToLower(it.Description + " " + it.Model + " " + strings.Join(it.Features, " "))
		hit := false
		for _, k := range c.Keywords {
			if strings.Contains(haystack, strings.ToLower(k)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
