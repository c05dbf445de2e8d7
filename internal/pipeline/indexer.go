package pipeline

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/embedding"
	"auto-advisor-go/pkg/es"
	"auto-advisor-go/pkg/log"
	"context"
	"fmt"
	"strings"
)

// DocumentIndexer 写入单条车源文档，es.IndexDocument 满足该签名。
type DocumentIndexer func(ctx context.Context, indexName string, doc model.EsDocument) error

// CatalogIndexer 为车源生成向量并写入 Elasticsearch。
type CatalogIndexer struct {
	embeddingClient embedding.Client
	indexName       string
	index           DocumentIndexer
}

// NewCatalogIndexer 创建索引器，embeddingClient 为 nil 时只写结构化字段。
func NewCatalogIndexer(embeddingClient embedding.Client, indexName string) *CatalogIndexer {
	return &CatalogIndexer{embeddingClient: embeddingClient, indexName: indexName, index: es.IndexDocument}
}

// IndexAll 逐条索引，向量化失败的车源仍会写入但没有向量。返回成功写入的数量。
func (ix *CatalogIndexer) IndexAll(ctx context.Context, items []model.CatalogItem) (int, error) {
	indexed := 0
	for _, it := range items {
		doc := model.EsDocument{CatalogItem: it}
		if ix.embeddingClient != nil {
			vec, err := ix.embeddingClient.CreateEmbedding(ctx, embeddingText(it))
			if err != nil {
				log.Warnf("[Indexer] 车源 %s 向量化失败: %v", it.ID, err)
			} else {
				doc.Vector = vec
			}
		}
		if err := ix.index(ctx, ix.indexName, doc); err != nil {
			return indexed, fmt.Errorf("索引车源 %s 失败: %w", it.ID, err)
		}
		indexed++
	}
	log.Infof("[Indexer] 车源索引完成, 共 %d 条", indexed)
	return indexed, nil
}

// embeddingText 拼接用于向量化的文本。
func embeddingText(it model.CatalogItem) string {
	parts := []string{it.Title(), it.Category, it.FuelType, it.Gearbox, it.Description}
	parts = append(parts, it.Features...)
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ". ")
}
