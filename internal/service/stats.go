package service

import (
	"auto-advisor-go/internal/model"
	"fmt"
	"math"
	"sort"
	"strings"
)

// statsWindow 是聚合查询时最多读取的车源数量。
const statsWindow = 500

// CatalogStats 是结构化查询的聚合结果。
type CatalogStats struct {
	Criteria  model.SearchCriteria `json:"criteria"`
	Count     int                  `json:"count"`
	MinPrice  float64              `json:"min_price"`
	AvgPrice  float64              `json:"avg_price"`
	MaxPrice  float64              `json:"max_price"`
	MinYear   int                  `json:"min_year,omitempty"`
	MaxYear   int                  `json:"max_year,omitempty"`
	Brands    []string             `json:"brands,omitempty"`
	Truncated bool                 `json:"truncated,omitempty"`
}

func computeStats(criteria model.SearchCriteria, items []model.CatalogItem) CatalogStats {
	st := CatalogStats{Criteria: criteria, Count: len(items), Truncated: len(items) >= statsWindow}
	if len(items) == 0 {
		return st
	}
	var sum float64
	brands := make(map[string]bool)
	for i, it := range items {
		if i == 0 || it.Price < st.MinPrice {
			st.MinPrice = it.Price
		}
		if it.Price > st.MaxPrice {
			st.MaxPrice = it.Price
		}
		if i == 0 || it.Year < st.MinYear {
			st.MinYear = it.Year
		}
		if it.Year > st.MaxYear {
			st.MaxYear = it.Year
		}
		sum += it.Price
		brands[it.Brand] = true
	}
	st.AvgPrice = math.Round(sum / float64(len(items)))
	for b := range brands {
		st.Brands = append(st.Brands, b)
	}
	sort.Strings(st.Brands)
	return st
}

func formatStats(st CatalogStats) string {
	if st.Count == 0 {
		return "По этим параметрам в каталоге нет предложений."
	}
	var b strings.Builder
	if st.Truncated {
		fmt.Fprintf(&b, "Найдено более %d предложений", st.Count)
	} else {
		fmt.Fprintf(&b, "Найдено предложений: %d", st.Count)
	}
	fmt.Fprintf(&b, ". Цена от %s до %s, в среднем %s", formatPrice(st.MinPrice), formatPrice(st.MaxPrice), formatPrice(st.AvgPrice))
	if st.MinYear > 0 {
		if st.MinYear == st.MaxYear {
			fmt.Fprintf(&b, ". Год выпуска: %d", st.MinYear)
		} else {
			fmt.Fprintf(&b, ". Годы выпуска: %d–%d", st.MinYear, st.MaxYear)
		}
	}
	if len(st.Brands) > 0 && len(st.Brands) <= 5 {
		fmt.Fprintf(&b, ". Марки: %s", strings.Join(st.Brands, ", "))
	}
	b.WriteString(".")
	return b.String()
}
