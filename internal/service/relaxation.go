package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"fmt"
	"math"
	"strings"
)

// yearFloor 以下不再放宽最小年份，而是直接移除。
const (
	yearFloor     = 1980
	minPriceFloor = 1000
)

// relaxPriority 是固定的放宽优先级，越靠前的参数越先放宽。
var relaxPriority = []string{
	model.ParamKeywords,
	model.ParamColor,
	model.ParamFeatures,
	model.ParamGearbox,
	model.ParamFuelType,
	model.ParamDriveType,
	model.ParamCity,
	model.ParamMaxPrice,
	model.ParamMinPrice,
	model.ParamMinYear,
	model.ParamMaxYear,
	model.ParamCategory,
	model.ParamModel,
	model.ParamBrand,
}

// relaxer 保存一次检索中的放宽状态。每一轮中每个参数最多放宽一次，
// 已被移除的参数不再参与。
type relaxer struct {
	current       model.SearchCriteria
	cfg           config.AssistantConfig
	round         map[string]bool
	exhausted     map[string]bool
	tried         map[string]map[string]bool
	rejected      map[string]bool
	oracleSkipped bool
}

func newRelaxer(original model.SearchCriteria, rejectedBrands []string, cfg config.AssistantConfig) *relaxer {
	r := &relaxer{
		current:   original.Clone(),
		cfg:       cfg,
		round:     make(map[string]bool),
		exhausted: make(map[string]bool),
		tried: map[string]map[string]bool{
			model.ParamBrand:    {},
			model.ParamCategory: {},
		},
		rejected: make(map[string]bool),
	}
	for _, b := range rejectedBrands {
		r.rejected[strings.ToLower(CanonicalBrand(b))] = true
	}
	for _, b := range original.ExcludeBrands {
		r.rejected[strings.ToLower(CanonicalBrand(b))] = true
	}
	if original.Brand != "" {
		r.tried[model.ParamBrand][strings.ToLower(original.Brand)] = true
	}
	if original.Category != "" {
		r.tried[model.ParamCategory][strings.ToLower(original.Category)] = true
	}
	return r
}

// candidates 返回本轮尚未放宽、仍可放宽的参数，按优先级排序。本轮全部用完时开始新一轮。
func (r *relaxer) candidates() []string {
	relaxable := r.relaxable()
	if len(relaxable) == 0 {
		return nil
	}
	var out []string
	for _, p := range relaxable {
		if !r.round[p] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		r.round = make(map[string]bool)
		return relaxable
	}
	return out
}

func (r *relaxer) relaxable() []string {
	var out []string
	for _, p := range relaxPriority {
		if r.exhausted[p] || !r.current.Has(p) {
			continue
		}
		// 型号依附于品牌，先移除型号再替换品牌
		if p == model.ParamBrand && r.current.Model != "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// apply 放宽一个参数并返回记录。reorder 可以调整替换候选的顺序。
func (r *relaxer) apply(param string, reorder func(param string, options []string) []string) (model.RelaxationStep, bool) {
	r.round[param] = true
	c := &r.current
	step := model.RelaxationStep{Parameter: param}

	switch param {
	case model.ParamMaxPrice:
		old := c.MaxPrice
		c.MaxPrice = math.Ceil(old * (1 + r.cfg.PriceWidenRatio))
		step.OldValue, step.NewValue, step.Strategy = old, c.MaxPrice, model.RelaxWidenNumeric
	case model.ParamMinPrice:
		old := c.MinPrice
		next := math.Floor(old * (1 - r.cfg.PriceWidenRatio))
		if next < minPriceFloor {
			c.MinPrice = 0
			r.exhausted[param] = true
			step.OldValue, step.NewValue, step.Strategy = old, nil, model.RelaxDrop
		} else {
			c.MinPrice = next
			step.OldValue, step.NewValue, step.Strategy = old, next, model.RelaxWidenNumeric
		}
	case model.ParamMinYear:
		old := c.MinYear
		next := old - r.cfg.YearWidenStep
		if next < yearFloor {
			c.MinYear = 0
			r.exhausted[param] = true
			step.OldValue, step.NewValue, step.Strategy = old, nil, model.RelaxDrop
		} else {
			c.MinYear = next
			step.OldValue, step.NewValue, step.Strategy = old, next, model.RelaxWidenNumeric
		}
	case model.ParamMaxYear:
		old := c.MaxYear
		c.MaxYear = old + r.cfg.YearWidenStep
		step.OldValue, step.NewValue, step.Strategy = old, c.MaxYear, model.RelaxWidenNumeric
	case model.ParamBrand:
		old := c.Brand
		next, ok := r.substitute(param, similarBrands(old), reorder)
		if ok {
			c.Brand = next
			step.OldValue, step.NewValue, step.Strategy = old, next, model.RelaxSubstituteSimilar
		} else {
			c.Brand = ""
			r.exhausted[param] = true
			step.OldValue, step.NewValue, step.Strategy = old, nil, model.RelaxDrop
		}
	case model.ParamCategory:
		old := c.Category
		next, ok := r.substitute(param, similarCategories(old), reorder)
		if ok {
			c.Category = next
			step.OldValue, step.NewValue, step.Strategy = old, next, model.RelaxSubstituteSimilar
		} else {
			c.Category = ""
			r.exhausted[param] = true
			step.OldValue, step.NewValue, step.Strategy = old, nil, model.RelaxDrop
		}
	default:
		old, ok := r.drop(param)
		if !ok {
			return model.RelaxationStep{}, false
		}
		r.exhausted[param] = true
		step.OldValue, step.NewValue, step.Strategy = old, nil, model.RelaxDrop
	}
	return step, true
}

// substitute 从相似候选中选出第一个未尝试、未被拒绝的值。
func (r *relaxer) substitute(param string, options []string, reorder func(string, []string) []string) (string, bool) {
	tried := r.tried[param]
	var open []string
	for _, o := range options {
		key := strings.ToLower(o)
		if tried[key] {
			continue
		}
		if param == model.ParamBrand && r.rejected[key] {
			continue
		}
		open = append(open, o)
	}
	if len(open) == 0 {
		return "", false
	}
	if reorder != nil {
		open = reorder(param, open)
	}
	next := open[0]
	tried[strings.ToLower(next)] = true
	return next, true
}

func (r *relaxer) drop(param string) (interface{}, bool) {
	c := &r.current
	var old interface{}
	switch param {
	case model.ParamKeywords:
		old, c.Keywords = c.Keywords, nil
	case model.ParamFeatures:
		old, c.MustHaveFeatures = c.MustHaveFeatures, nil
	case model.ParamColor:
		old, c.Color = c.Color, ""
	case model.ParamGearbox:
		old, c.Gearbox = c.Gearbox, ""
	case model.ParamFuelType:
		old, c.FuelType = c.FuelType, ""
	case model.ParamDriveType:
		old, c.DriveType = c.DriveType, ""
	case model.ParamCity:
		old, c.City = c.City, ""
	case model.ParamModel:
		old, c.Model = c.Model, ""
	default:
		return nil, false
	}
	return old, true
}

var paramTitles = map[string]string{
	model.ParamKeywords:  "пожелания",
	model.ParamColor:     "цвет",
	model.ParamFeatures:  "опции",
	model.ParamGearbox:   "коробка передач",
	model.ParamFuelType:  "тип топлива",
	model.ParamDriveType: "привод",
	model.ParamCity:      "город",
	model.ParamMaxPrice:  "максимальная цена",
	model.ParamMinPrice:  "минимальная цена",
	model.ParamMinYear:   "год выпуска от",
	model.ParamMaxYear:   "год выпуска до",
	model.ParamCategory:  "тип кузова",
	model.ParamModel:     "модель",
	model.ParamBrand:     "марка",
}

// describeStep 用一句话说明一次放宽。
func describeStep(step model.RelaxationStep) string {
	title := paramTitles[step.Parameter]
	if title == "" {
		title = step.Parameter
	}
	switch step.Strategy {
	case model.RelaxWidenNumeric:
		return fmt.Sprintf("%s: %s вместо %s", title, formatValue(step.Parameter, step.NewValue), formatValue(step.Parameter, step.OldValue))
	case model.RelaxSubstituteSimilar:
		return fmt.Sprintf("%s: %v вместо %v", title, step.NewValue, step.OldValue)
	default:
		return fmt.Sprintf("%s (%s) больше не учитывается", title, formatValue(step.Parameter, step.OldValue))
	}
}

func describeSteps(steps []model.RelaxationStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, describeStep(s))
	}
	return strings.Join(parts, "; ")
}

func formatValue(param string, v interface{}) string {
	switch x := v.(type) {
	case float64:
		if param == model.ParamMaxPrice || param == model.ParamMinPrice {
			return formatPrice(x)
		}
		return fmt.Sprintf("%g", x)
	case []string:
		return strings.Join(x, ", ")
	case nil:
		return "не задано"
	}
	return fmt.Sprintf("%v", v)
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
