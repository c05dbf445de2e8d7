package model

import "time"

// CatalogItem 是车源目录中的一条记录。
type CatalogItem struct {
	ID          string    `json:"id"`
	Brand       string    `json:"brand"`
	Model       string    `json:"model"`
	Category    string    `json:"category"`
	Year        int       `json:"year"`
	Price       float64   `json:"price"`
	FuelType    string    `json:"fuel_type,omitempty"`
	Gearbox     string    `json:"gearbox,omitempty"`
	DriveType   string    `json:"drive_type,omitempty"`
	Color       string    `json:"color,omitempty"`
	City        string    `json:"city,omitempty"`
	Features    []string  `json:"features,omitempty"`
	Description string    `json:"description,omitempty"`
	Rating      float64   `json:"rating,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// Title 返回用于回复的简短名称。
func (i CatalogItem) Title() string {
	if i.Model == "" {
		return i.Brand
	}
	return i.Brand + " " + i.Model
}

// EsDocument 定义了存储在 Elasticsearch 中的车源文档结构。
type EsDocument struct {
	CatalogItem
	Vector []float32 `json:"vector,omitempty"` // 描述文本的向量表示
}
