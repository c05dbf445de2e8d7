package repository

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/embedding"
	"auto-advisor-go/pkg/log"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/sync/errgroup"
)

// CatalogRepository 定义了车源目录的只读检索接口。
type CatalogRepository interface {
	// Query 返回满足全部条件的车源，最多 limit 条。
	Query(ctx context.Context, criteria model.SearchCriteria, limit int) ([]model.CatalogItem, error)
	// Sample 返回不带过滤的车源窗口，按上架时间与评分倒序。
	Sample(ctx context.Context, limit int) ([]model.CatalogItem, error)
}

type esCatalogRepository struct {
	esClient        *elasticsearch.Client
	indexName       string
	embeddingClient embedding.Client
}

// NewCatalogRepository 创建基于 Elasticsearch 的车源检索实现；embeddingClient 可为 nil，此时只做关键词检索。
func NewCatalogRepository(esClient *elasticsearch.Client, indexName string, embeddingClient embedding.Client) CatalogRepository {
	return &esCatalogRepository{esClient: esClient, indexName: indexName, embeddingClient: embeddingClient}
}

type esHit struct {
	ID     string           `json:"_id"`
	Score  float64          `json:"_score"`
	Source model.EsDocument `json:"_source"`
}

// Query 并发执行结构化关键词检索与 kNN 语义检索，按关键词结果优先合并。
func (r *esCatalogRepository) Query(ctx context.Context, criteria model.SearchCriteria, limit int) ([]model.CatalogItem, error) {
	if limit <= 0 {
		limit = 10
	}
	filterClause := BuildFilterClause(criteria)

	var keywordHits, semanticHits []esHit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body := map[string]interface{}{
			"query": map[string]interface{}{"bool": withKeywords(filterClause, criteria.Keywords)},
			"sort":  []interface{}{"_score", map[string]interface{}{"rating": "desc"}},
			"size":  limit,
		}
		hits, err := r.search(gctx, body)
		if err != nil {
			return err
		}
		keywordHits = hits
		return nil
	})
	if len(criteria.Keywords) > 0 && r.embeddingClient != nil {
		g.Go(func() error {
			vector, err := r.embeddingClient.CreateEmbedding(gctx, strings.Join(criteria.Keywords, " "))
			if err != nil {
				// 语义召回只是补充，失败不影响关键词结果
				log.Warnf("[CatalogRepository] 关键词向量化失败，跳过 kNN: %v", err)
				return nil
			}
			body := map[string]interface{}{
				"knn": map[string]interface{}{
					"field":          "vector",
					"query_vector":   vector,
					"k":              limit,
					"num_candidates": limit * 10,
					"filter":         map[string]interface{}{"bool": filterClause},
				},
				"size": limit,
			}
			hits, err := r.search(gctx, body)
			if err != nil {
				log.Warnf("[CatalogRepository] kNN 检索失败: %v", err)
				return nil
			}
			semanticHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeHits(limit, keywordHits, semanticHits), nil
}

// Sample 返回最新上架且评分高的车源。
func (r *esCatalogRepository) Sample(ctx context.Context, limit int) ([]model.CatalogItem, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		"sort": []interface{}{
			map[string]interface{}{"added_at": "desc"},
			map[string]interface{}{"rating": "desc"},
		},
		"size": limit,
	}
	hits, err := r.search(ctx, body)
	if err != nil {
		return nil, err
	}
	return mergeHits(limit, hits), nil
}

func (r *esCatalogRepository) search(ctx context.Context, body map[string]interface{}) ([]esHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}
	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(r.indexName),
		r.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s, body: %s", res.Status(), string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []esHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return esResponse.Hits.Hits, nil
}

// BuildFilterClause 将检索条件翻译为 ES bool 查询的 filter / must_not 部分。
func BuildFilterClause(c model.SearchCriteria) map[string]interface{} {
	filters := []interface{}{}
	term := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]interface{}{"term": map[string]interface{}{field: strings.ToLower(value)}})
		}
	}
	term("brand", c.Brand)
	term("model", c.Model)
	term("category", c.Category)
	term("color", c.Color)
	term("fuel_type", c.FuelType)
	term("gearbox", c.Gearbox)
	term("drive_type", c.DriveType)
	term("city", c.City)
	for _, f := range c.MustHaveFeatures {
		term("features", f)
	}

	if c.MinPrice > 0 || c.MaxPrice > 0 {
		rng := map[string]interface{}{}
		if c.MinPrice > 0 {
			rng["gte"] = c.MinPrice
		}
		if c.MaxPrice > 0 {
			rng["lte"] = c.MaxPrice
		}
		filters = append(filters, map[string]interface{}{"range": map[string]interface{}{"price": rng}})
	}
	if c.MinYear > 0 || c.MaxYear > 0 {
		rng := map[string]interface{}{}
		if c.MinYear > 0 {
			rng["gte"] = c.MinYear
		}
		if c.MaxYear > 0 {
			rng["lte"] = c.MaxYear
		}
		filters = append(filters, map[string]interface{}{"range": map[string]interface{}{"year": rng}})
	}

	clause := map[string]interface{}{"filter": filters}
	if len(c.ExcludeBrands) > 0 {
		excluded := make([]string, 0, len(c.ExcludeBrands))
		for _, b := range c.ExcludeBrands {
			excluded = append(excluded, strings.ToLower(b))
		}
		clause["must_not"] = []interface{}{
			map[string]interface{}{"terms": map[string]interface{}{"brand": excluded}},
		}
	}
	return clause
}

func withKeywords(filterClause map[string]interface{}, keywords []string) map[string]interface{} {
	out := make(map[string]interface{}, len(filterClause)+1)
	for k, v := range filterClause {
		out[k] = v
	}
	if len(keywords) > 0 {
		out["must"] = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  strings.Join(keywords, " "),
				"fields": []string{"description", "model^2", "features^2"},
			},
		}
	}
	return out
}

func mergeHits(limit int, groups ...[]esHit) []model.CatalogItem {
	seen := make(map[string]bool)
	var items []model.CatalogItem
	for _, hits := range groups {
		for _, h := range hits {
			item := h.Source.CatalogItem
			if item.ID == "" {
				item.ID = h.ID
			}
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			items = append(items, item)
			if len(items) >= limit {
				return items
			}
		}
	}
	return items
}
