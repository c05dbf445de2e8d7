package model

// SearchStrategy 标注结果的来源。
type SearchStrategy string

const (
	StrategyExact       SearchStrategy = "exact"
	StrategyRelaxed     SearchStrategy = "relaxed"
	StrategyRecommended SearchStrategy = "recommended"
)

// RelaxStrategy 是单步放宽采用的方式。
type RelaxStrategy string

const (
	RelaxWidenNumeric      RelaxStrategy = "widen-numeric"
	RelaxSubstituteSimilar RelaxStrategy = "substitute-similar"
	RelaxDrop              RelaxStrategy = "drop"
)

// RelaxationStep 记录一次放宽：参数、旧值、新值与方式。新值为 nil 表示该参数被移除。
type RelaxationStep struct {
	Parameter string        `json:"parameter"`
	OldValue  interface{}   `json:"old_value"`
	NewValue  interface{}   `json:"new_value"`
	Strategy  RelaxStrategy `json:"strategy"`
}

// SearchResult 是放宽检索引擎的输出。
type SearchResult struct {
	OriginalCriteria SearchCriteria   `json:"original_criteria"`
	CriteriaUsed     SearchCriteria   `json:"criteria_used"`
	Items            []CatalogItem    `json:"items"`
	Strategy         SearchStrategy   `json:"strategy"`
	RelaxationSteps  []RelaxationStep `json:"relaxation_steps,omitempty"`
	Confidence       float64          `json:"confidence"`
	Explanation      string           `json:"explanation,omitempty"`
}

// Touched 判断放宽过程中是否修改过某个参数。
func (r *SearchResult) Touched(param string) bool {
	for _, s := range r.RelaxationSteps {
		if s.Parameter == param {
			return true
		}
	}
	return false
}

// StepFor 返回某个参数最后一次放宽记录。
func (r *SearchResult) StepFor(param string) (RelaxationStep, bool) {
	for i := len(r.RelaxationSteps) - 1; i >= 0; i-- {
		if r.RelaxationSteps[i].Parameter == param {
			return r.RelaxationSteps[i], true
		}
	}
	return RelaxationStep{}, false
}

// MinPrice 返回结果中的最低价，无结果时为 0。
func (r *SearchResult) MinPrice() float64 {
	var lowest float64
	for i, it := range r.Items {
		if i == 0 || it.Price < lowest {
			lowest = it.Price
		}
	}
	return lowest
}

// MaxPrice 返回结果中的最高价。
func (r *SearchResult) MaxPrice() float64 {
	var highest float64
	for _, it := range r.Items {
		if it.Price > highest {
			highest = it.Price
		}
	}
	return highest
}
