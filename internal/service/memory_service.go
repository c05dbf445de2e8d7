package service

import (
	"auto-advisor-go/internal/model"
	"auto-advisor-go/internal/repository"
	"auto-advisor-go/pkg/embedding"
	"auto-advisor-go/pkg/log"
	"auto-advisor-go/pkg/metrics"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxMemoriesPerTurn  = 3
	minRecallSimilarity = 0.3
)

// MemoryService 管理用户级长期记忆：写入、召回以及从一轮对话中提取候选记忆。
type MemoryService interface {
	Save(ctx context.Context, rec *model.MemoryRecord) error
	Recall(ctx context.Context, userID, query string, topK int) ([]model.ScoredMemory, error)
	ExtractCandidates(userID, utterance string, delta model.SearchCriteria, result *model.SearchResult, newTopic string) []*model.MemoryRecord
}

type memoryService struct {
	repo     repository.MemoryRepository
	embedder embedding.Client
	backoff  time.Duration
}

// NewMemoryService 创建记忆服务，embedder 可以为 nil，此时召回按时间倒序。
func NewMemoryService(repo repository.MemoryRepository, embedder embedding.Client, retryBackoff time.Duration) MemoryService {
	return &memoryService{repo: repo, embedder: embedder, backoff: retryBackoff}
}

// Save 写入一条记忆，失败后等待 backoff 重试一次。
func (s *memoryService) Save(ctx context.Context, rec *model.MemoryRecord) error {
	if rec == nil || strings.TrimSpace(rec.UserID) == "" {
		return model.ErrOrphanMemory
	}
	if len(rec.Embedding) == 0 && s.embedder != nil {
		vec, err := s.embedder.CreateEmbedding(ctx, rec.Text)
		if err != nil {
			log.Warnf("记忆向量化失败，按无向量写入: %v", err)
		} else {
			rec.Embedding = vec
		}
	}

	err := s.repo.Save(ctx, rec)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrOrphanMemory) {
		return err
	}
	log.Warnf("写入记忆失败，%v 后重试: %v", s.backoff, err)
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrMemoryWriteFailed, ctx.Err())
	case <-time.After(s.backoff):
	}
	if err = s.repo.Save(ctx, rec); err != nil {
		metrics.MemoryWriteFailures.Inc()
		return fmt.Errorf("%w: %v", ErrMemoryWriteFailed, err)
	}
	return nil
}

// Recall 按语义相似度召回记忆；向量不可用时退化为最近的记录。
func (s *memoryService) Recall(ctx context.Context, userID, query string, topK int) ([]model.ScoredMemory, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.ErrOrphanMemory
	}
	if topK <= 0 {
		topK = 5
	}
	if s.embedder != nil && strings.TrimSpace(query) != "" {
		vec, err := s.embedder.CreateEmbedding(ctx, query)
		if err == nil {
			scored, err := s.repo.SearchSimilar(ctx, userID, vec, topK)
			if err != nil {
				return nil, err
			}
			var out []model.ScoredMemory
			for _, m := range scored {
				if m.Similarity >= minRecallSimilarity {
					out = append(out, m)
				}
			}
			return out, nil
		}
		if !errors.Is(err, embedding.ErrNotConfigured) {
			log.Warnf("召回时向量化失败，改用最近记忆: %v", err)
		}
	}
	records, err := s.repo.Recent(ctx, userID, topK)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredMemory, 0, len(records))
	for _, r := range records {
		out = append(out, model.ScoredMemory{Record: r})
	}
	return out, nil
}

var (
	rejectionMarkers  = []string{"не хочу", "не нравится", "не нравятся", "кроме", "без", "не рассматриваю", "не надо", "не предлагай", "только не"}
	preferenceMarkers = []string{"хочу", "нравится", "нравятся", "предпочитаю", "люблю", "ищу", "нужен", "нужна", "нужно", "интересует"}
)

// ExtractCandidates 用规则从一轮对话中提取至多 3 条候选记忆，按拒绝、偏好、条件、兴趣排序。
func (s *memoryService) ExtractCandidates(userID, utterance string, delta model.SearchCriteria, result *model.SearchResult, newTopic string) []*model.MemoryRecord {
	text := normalizeText(utterance)
	var out []*model.MemoryRecord
	add := func(kind model.MemoryKind, body string, confidence float64, meta map[string]string) {
		if len(out) >= maxMemoriesPerTurn {
			return
		}
		rec, err := model.NewMemoryRecord(userID, kind, body, confidence, meta)
		if err != nil {
			log.Warnf("跳过无效的候选记忆: %v", err)
			return
		}
		out = append(out, rec)
	}

	if len(delta.ExcludeBrands) > 0 && containsWord(text, rejectionMarkers) {
		add(model.MemoryRejection, "Не рассматривает марки: "+strings.Join(delta.ExcludeBrands, ", "), 0.8,
			map[string]string{"brands": strings.Join(delta.ExcludeBrands, ",")})
	}

	if containsWord(text, preferenceMarkers) && !containsWord(text, rejectionMarkers) {
		var prefs []string
		meta := make(map[string]string)
		for _, kv := range [][2]string{
			{model.ParamBrand, delta.Brand},
			{model.ParamCategory, delta.Category},
			{model.ParamFuelType, delta.FuelType},
			{model.ParamGearbox, delta.Gearbox},
			{model.ParamDriveType, delta.DriveType},
		} {
			if kv[1] != "" {
				prefs = append(prefs, kv[1])
				meta[kv[0]] = kv[1]
			}
		}
		if len(prefs) > 0 {
			add(model.MemoryPreference, "Предпочитает: "+strings.Join(prefs, ", "), 0.7, meta)
		}
	}

	if result != nil && !delta.IsEmpty() {
		raw, _ := json.Marshal(result.OriginalCriteria)
		add(model.MemoryCriteria, "Искал: "+summarizeCriteria(result.OriginalCriteria), 0.5,
			map[string]string{"criteria": string(raw), "strategy": string(result.Strategy)})
	}

	if newTopic != "" {
		add(model.MemoryInterest, "Интересовался темой: "+newTopic, 0.5, map[string]string{"topic": newTopic})
	}
	return out
}

// RejectedBrands 从召回的记忆中取出用户明确拒绝过的品牌。
func RejectedBrands(memories []model.ScoredMemory) []string {
	var out []string
	for _, m := range memories {
		if m.Record.Kind != model.MemoryRejection {
			continue
		}
		for _, b := range strings.Split(m.Record.Metadata["brands"], ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = model.UnionStrings(out, []string{b})
			}
		}
	}
	return out
}

func summarizeCriteria(c model.SearchCriteria) string {
	var parts []string
	for _, v := range []string{c.Brand, c.Model, c.Category, c.FuelType, c.Gearbox, c.DriveType, c.Color, c.City} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if c.MinYear > 0 && c.MinYear == c.MaxYear {
		parts = append(parts, fmt.Sprintf("%d г.", c.MinYear))
	} else {
		if c.MinYear > 0 {
			parts = append(parts, fmt.Sprintf("от %d г.", c.MinYear))
		}
		if c.MaxYear > 0 {
			parts = append(parts, fmt.Sprintf("до %d г.", c.MaxYear))
		}
	}
	if c.MinPrice > 0 {
		parts = append(parts, "от "+formatPrice(c.MinPrice))
	}
	if c.MaxPrice > 0 {
		parts = append(parts, "до "+formatPrice(c.MaxPrice))
	}
	parts = append(parts, c.MustHaveFeatures...)
	if len(parts) == 0 {
		return "без ограничений"
	}
	return strings.Join(parts, ", ")
}
