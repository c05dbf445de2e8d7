package repository

import (
	"auto-advisor-go/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MemoryRepository 定义了用户长期记忆的存取接口，记录只追加。
type MemoryRepository interface {
	Save(ctx context.Context, rec *model.MemoryRecord) error
	// SearchSimilar 按向量相似度返回该用户的前 topK 条记忆。
	SearchSimilar(ctx context.Context, userID string, vector []float32, topK int) ([]model.ScoredMemory, error)
	// Recent 按时间倒序返回该用户的记忆，用于没有向量时的召回。
	Recent(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error)
}

// NewMemoryRepository 根据数据库方言选择实现：postgres 使用 pgvector，其余使用 JSON 向量 + 进程内余弦。
func NewMemoryRepository(db *gorm.DB) MemoryRepository {
	if db.Dialector.Name() == "postgres" {
		return &pgvectorMemoryRepository{db: db}
	}
	return &gormMemoryRepository{db: db}
}

// AutoMigrateMemory 按方言迁移 memory_records 表。
func AutoMigrateMemory(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		return db.AutoMigrate(&pgMemoryRow{})
	}
	return db.AutoMigrate(&memoryRow{})
}

type memoryRow struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	UserID     string `gorm:"type:varchar(128);index;not null"`
	Kind       string `gorm:"type:varchar(32);index;not null"`
	Text       string `gorm:"type:text;not null"`
	Metadata   datatypes.JSON
	Embedding  datatypes.JSON
	Confidence float64
	CreatedAt  time.Time `gorm:"index"`
}

func (memoryRow) TableName() string { return "memory_records" }

type pgMemoryRow struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	UserID     string `gorm:"type:varchar(128);index;not null"`
	Kind       string `gorm:"type:varchar(32);index;not null"`
	Text       string `gorm:"type:text;not null"`
	Metadata   datatypes.JSON
	Embedding  *pgvector.Vector `gorm:"type:vector"`
	Confidence float64
	CreatedAt  time.Time `gorm:"index"`
}

func (pgMemoryRow) TableName() string { return "memory_records" }

func validateRecord(rec *model.MemoryRecord) error {
	if rec == nil || strings.TrimSpace(rec.UserID) == "" {
		return model.ErrOrphanMemory
	}
	return nil
}

func encodeMetadata(m map[string]string) (datatypes.JSON, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal memory metadata: %w", err)
	}
	return datatypes.JSON(b), nil
}

func decodeMetadata(raw datatypes.JSON) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

type gormMemoryRepository struct {
	db *gorm.DB
}

// scanWindow 为 MySQL 实现中参与余弦计算的最近记录数上限。
const scanWindow = 500

func (r *gormMemoryRepository) Save(ctx context.Context, rec *model.MemoryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	meta, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	row := memoryRow{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Kind:       string(rec.Kind),
		Text:       rec.Text,
		Metadata:   meta,
		Confidence: rec.Confidence,
		CreatedAt:  rec.CreatedAt,
	}
	if len(rec.Embedding) > 0 {
		vec, err := json.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		row.Embedding = datatypes.JSON(vec)
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *gormMemoryRepository) SearchSimilar(ctx context.Context, userID string, vector []float32, topK int) ([]model.ScoredMemory, error) {
	var rows []memoryRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND embedding IS NOT NULL", userID).
		Order("created_at DESC").
		Limit(scanWindow).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]model.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		rec := row.toRecord()
		if err := json.Unmarshal(row.Embedding, &rec.Embedding); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return rankBySimilarity(records, vector, topK), nil
}

func (r *gormMemoryRepository) Recent(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	var rows []memoryRow
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

func (row memoryRow) toRecord() model.MemoryRecord {
	return model.MemoryRecord{
		ID:         row.ID,
		UserID:     row.UserID,
		Kind:       model.MemoryKind(row.Kind),
		Text:       row.Text,
		Metadata:   decodeMetadata(row.Metadata),
		Confidence: row.Confidence,
		CreatedAt:  row.CreatedAt,
	}
}

type pgvectorMemoryRepository struct {
	db *gorm.DB
}

func (r *pgvectorMemoryRepository) Save(ctx context.Context, rec *model.MemoryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	meta, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	row := pgMemoryRow{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Kind:       string(rec.Kind),
		Text:       rec.Text,
		Metadata:   meta,
		Confidence: rec.Confidence,
		CreatedAt:  rec.CreatedAt,
	}
	if len(rec.Embedding) > 0 {
		vec := pgvector.NewVector(rec.Embedding)
		row.Embedding = &vec
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *pgvectorMemoryRepository) SearchSimilar(ctx context.Context, userID string, vector []float32, topK int) ([]model.ScoredMemory, error) {
	if topK <= 0 {
		topK = 5
	}
	// pgvector 的 <=> 为余弦距离，1 - 距离即余弦相似度
	type result struct {
		pgMemoryRow
		Similarity float64
	}
	var results []result
	queryVector := pgvector.NewVector(vector)
	err := r.db.WithContext(ctx).
		Table("memory_records").
		Select("memory_records.*, 1 - (embedding <=> ?) AS similarity", queryVector).
		Where("user_id = ? AND embedding IS NOT NULL", userID).
		Order(gorm.Expr("embedding <=> ?", queryVector)).
		Limit(topK).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredMemory, 0, len(results))
	for _, res := range results {
		out = append(out, model.ScoredMemory{Record: res.pgMemoryRow.toRecord(), Similarity: res.Similarity})
	}
	return out, nil
}

func (r *pgvectorMemoryRepository) Recent(ctx context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	var rows []pgMemoryRow
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

func (row pgMemoryRow) toRecord() model.MemoryRecord {
	rec := model.MemoryRecord{
		ID:         row.ID,
		UserID:     row.UserID,
		Kind:       model.MemoryKind(row.Kind),
		Text:       row.Text,
		Metadata:   decodeMetadata(row.Metadata),
		Confidence: row.Confidence,
		CreatedAt:  row.CreatedAt,
	}
	if row.Embedding != nil {
		rec.Embedding = row.Embedding.Slice()
	}
	return rec
}

type inMemoryMemoryRepository struct {
	mu      sync.RWMutex
	records map[string][]model.MemoryRecord
}

// NewInMemoryMemoryRepository 返回进程内实现，用于本地运行与测试。
func NewInMemoryMemoryRepository() MemoryRepository {
	return &inMemoryMemoryRepository{records: make(map[string][]model.MemoryRecord)}
}

func (r *inMemoryMemoryRepository) Save(_ context.Context, rec *model.MemoryRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	cp.Embedding = append([]float32(nil), rec.Embedding...)
	r.records[rec.UserID] = append(r.records[rec.UserID], cp)
	return nil
}

func (r *inMemoryMemoryRepository) SearchSimilar(_ context.Context, userID string, vector []float32, topK int) ([]model.ScoredMemory, error) {
	r.mu.RLock()
	records := append([]model.MemoryRecord(nil), r.records[userID]...)
	r.mu.RUnlock()
	return rankBySimilarity(records, vector, topK), nil
}

func (r *inMemoryMemoryRepository) Recent(_ context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.records[userID]
	out := make([]model.MemoryRecord, 0, len(list))
	for i := len(list) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func rankBySimilarity(records []model.MemoryRecord, vector []float32, topK int) []model.ScoredMemory {
	if topK <= 0 {
		topK = 5
	}
	scored := make([]model.ScoredMemory, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) == 0 || len(rec.Embedding) != len(vector) {
			continue
		}
		scored = append(scored, model.ScoredMemory{Record: rec, Similarity: Cosine(rec.Embedding, vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Cosine 计算两个等长向量的余弦相似度，任一为零向量时返回 0。
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
