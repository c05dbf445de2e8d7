// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/log"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，返回索引是否为本次新建。
func InitES(esCfg config.ElasticsearchConfig, dims int) (bool, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return false, err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, dims)
}

// CatalogMapping 返回车源索引的 mapping，向量维度与 embedding 模型一致。
func CatalogMapping(dims int) string {
	if dims <= 0 {
		dims = 1024
	}
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"brand": { "type": "keyword", "normalizer": "lowercase" },
				"model": { "type": "keyword", "normalizer": "lowercase" },
				"category": { "type": "keyword", "normalizer": "lowercase" },
				"year": { "type": "integer" },
				"price": { "type": "double" },
				"fuel_type": { "type": "keyword", "normalizer": "lowercase" },
				"gearbox": { "type": "keyword", "normalizer": "lowercase" },
				"drive_type": { "type": "keyword", "normalizer": "lowercase" },
				"color": { "type": "keyword", "normalizer": "lowercase" },
				"city": { "type": "keyword", "normalizer": "lowercase" },
				"features": { "type": "keyword", "normalizer": "lowercase" },
				"description": { "type": "text", "analyzer": "russian" },
				"rating": { "type": "float" },
				"added_at": { "type": "date" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		},
		"settings": {
			"analysis": {
				"normalizer": {
					"lowercase": { "type": "custom", "filter": ["lowercase"] }
				}
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string, dims int) (bool, error) {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return false, err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return false, nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return false, fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	created, err := ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(CatalogMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return false, err
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, created.String())
		return false, errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return true, nil
}

// IndexDocument 将单条车源写入 Elasticsearch。
func IndexDocument(ctx context.Context, indexName string, doc model.EsDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引车源到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index catalog item")
	}
	return nil
}
