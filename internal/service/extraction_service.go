package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"auto-advisor-go/pkg/log"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExtractionResult 是条件抽取的输出。Delta 为本轮新增条件，Criteria 为与历史条件合并后的结果。
type ExtractionResult struct {
	Delta     model.SearchCriteria `json:"delta"`
	Criteria  model.SearchCriteria `json:"criteria"`
	Source    string               `json:"source"`
	Corrected bool                 `json:"corrected"`
}

// ExtractionService 把自然语言发言转成结构化检索条件。
type ExtractionService interface {
	Extract(ctx context.Context, utterance, contextText string, prior model.SearchCriteria, referencePrice float64) ExtractionResult
}

type extractionService struct {
	oracle oracleCaller
	cfg    config.AssistantConfig
	now    func() time.Time
}

// NewExtractionService 创建条件抽取服务，oracle 可以为 nil。
func NewExtractionService(oracle TextOracle, timeout time.Duration, cfg config.AssistantConfig) ExtractionService {
	return &extractionService{
		oracle: newOracleCaller(oracle, timeout),
		cfg:    cfg,
		now:    time.Now,
	}
}

// Extract 先让 oracle 给出结构化结果，再用规则解析校正数值与相对表达；
// oracle 不可用时只用规则解析，什么都没解析出来时返回空增量，历史条件保持不变。
func (s *extractionService) Extract(ctx context.Context, utterance, contextText string, prior model.SearchCriteria, referencePrice float64) ExtractionResult {
	rules := parseUtterance(utterance, prior, referencePrice, parseOptions{
		cheaperRatio: s.cfg.CheaperRatio,
		now:          s.now(),
	})

	source := "oracle"
	delta, err := s.askOracle(ctx, utterance, contextText, prior)
	if err != nil {
		log.Warnf("条件抽取回退到规则解析: %v", err)
		source = "rules"
		delta = rules.delta
	} else {
		delta = reconcile(delta, rules)
	}

	merged, fixed := prior.Merge(delta).Normalized()
	return ExtractionResult{
		Delta:     delta,
		Criteria:  merged,
		Source:    source,
		Corrected: fixed,
	}
}

func (s *extractionService) askOracle(ctx context.Context, utterance, contextText string, prior model.SearchCriteria) (model.SearchCriteria, error) {
	var out model.SearchCriteria
	if err := s.oracle.askJSON(ctx, "extraction", buildExtractionPrompt(utterance, contextText, prior), &out); err != nil {
		return model.SearchCriteria{}, err
	}
	out, ok := sanitizeCriteria(out)
	if !ok {
		return model.SearchCriteria{}, s.oracle.malformed(ctx, "extraction", "numeric field out of range")
	}
	return out, nil
}

// reconcile 合并 oracle 与规则解析结果：数值与相对表达以规则为准，
// oracle 没给出的离散字段由规则补齐。
func reconcile(oracle model.SearchCriteria, rules ruleParse) model.SearchCriteria {
	out := oracle.Clone()
	r := rules.delta
	if rules.numeric || rules.relative != relativeNone {
		out.MinPrice, out.MaxPrice = r.MinPrice, r.MaxPrice
		if r.MinYear > 0 || r.MaxYear > 0 {
			out.MinYear, out.MaxYear = r.MinYear, r.MaxYear
		}
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&out.Brand, r.Brand)
	fill(&out.Model, r.Model)
	fill(&out.Category, r.Category)
	fill(&out.Color, r.Color)
	fill(&out.FuelType, r.FuelType)
	fill(&out.Gearbox, r.Gearbox)
	fill(&out.DriveType, r.DriveType)
	fill(&out.City, r.City)
	out.MustHaveFeatures = model.UnionStrings(out.MustHaveFeatures, r.MustHaveFeatures)
	out.ExcludeBrands = model.UnionStrings(out.ExcludeBrands, r.ExcludeBrands)
	return out
}

// sanitizeCriteria 规范化 oracle 给出的取值，数值越界时返回 false。
func sanitizeCriteria(c model.SearchCriteria) (model.SearchCriteria, bool) {
	if c.MinPrice < 0 || c.MaxPrice < 0 || c.MinYear < 0 || c.MaxYear < 0 {
		return c, false
	}
	for _, y := range []int{c.MinYear, c.MaxYear} {
		if y != 0 && (y < minCatalogYear || y > maxCatalogYear) {
			return c, false
		}
	}
	c.Brand = CanonicalBrand(c.Brand)
	c.Category = CanonicalCategory(c.Category)
	c.FuelType = canonicalFrom(c.FuelType, fuelLexicon)
	c.Gearbox = canonicalFrom(c.Gearbox, gearboxLexicon)
	c.Color = normalizeText(strings.TrimSpace(c.Color))
	c.DriveType = normalizeText(strings.TrimSpace(c.DriveType))
	c.Model = strings.TrimSpace(c.Model)
	c.City = strings.TrimSpace(c.City)
	for i, b := range c.ExcludeBrands {
		c.ExcludeBrands[i] = CanonicalBrand(b)
	}
	c.ExcludeBrands = model.UnionStrings(nil, c.ExcludeBrands)
	c.Keywords = model.UnionStrings(nil, c.Keywords)
	c.MustHaveFeatures = model.UnionStrings(nil, c.MustHaveFeatures)
	return c, true
}

// ValidateCriteria 校正外部直接提交的检索条件，负数取值视为非法。
func ValidateCriteria(c model.SearchCriteria) (model.SearchCriteria, error) {
	out, ok := sanitizeCriteria(c.Clone())
	if !ok {
		return c, fmt.Errorf("%w: negative or out-of-range numeric field", ErrInvalidCriteria)
	}
	out, _ = out.Normalized()
	return out, nil
}

func buildExtractionPrompt(utterance, contextText string, prior model.SearchCriteria) string {
	priorJSON, _ := json.Marshal(prior)
	var b strings.Builder
	b.WriteString("Ты извлекаешь параметры поиска автомобиля из реплики пользователя.\n")
	b.WriteString("Верни только JSON с полями: brand, model, category, color, fuel_type, gearbox, drive_type, city, ")
	b.WriteString("min_price, max_price (в рублях), min_year, max_year, keywords, must_have_features, exclude_brands.\n")
	b.WriteString("Указывай только то, что пользователь сказал в этой реплике; остальные поля не заполняй.\n")
	if contextText != "" {
		b.WriteString("Контекст диалога:\n")
		b.WriteString(contextText)
		b.WriteString("\n")
	}
	b.WriteString("Текущие параметры: ")
	b.Write(priorJSON)
	b.WriteString("\nРеплика: ")
	b.WriteString(utterance)
	return b.String()
}
