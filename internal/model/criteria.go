package model

import (
	"strings"
)

// 检索参数名，放宽步骤与 oracle 交互都使用这些名字。
const (
	ParamKeywords   = "keywords"
	ParamColor      = "color"
	ParamFeatures   = "must_have_features"
	ParamGearbox    = "gearbox"
	ParamFuelType   = "fuel_type"
	ParamDriveType  = "drive_type"
	ParamCity       = "city"
	ParamMaxPrice   = "max_price"
	ParamMinPrice   = "min_price"
	ParamMinYear    = "min_year"
	ParamMaxYear    = "max_year"
	ParamCategory   = "category"
	ParamModel      = "model"
	ParamBrand      = "brand"
	ParamExclusions = "exclude_brands"
)

// SearchCriteria 是稀疏的检索条件：字符串为空、数值为 0 表示未设置。
type SearchCriteria struct {
	Brand     string  `json:"brand,omitempty"`
	Model     string  `json:"model,omitempty"`
	Category  string  `json:"category,omitempty"`
	Color     string  `json:"color,omitempty"`
	FuelType  string  `json:"fuel_type,omitempty"`
	Gearbox   string  `json:"gearbox,omitempty"`
	DriveType string  `json:"drive_type,omitempty"`
	City      string  `json:"city,omitempty"`
	MinPrice  float64 `json:"min_price,omitempty"`
	MaxPrice  float64 `json:"max_price,omitempty"`
	MinYear   int     `json:"min_year,omitempty"`
	MaxYear   int     `json:"max_year,omitempty"`

	Keywords         []string `json:"keywords,omitempty"`
	MustHaveFeatures []string `json:"must_have_features,omitempty"`
	ExcludeBrands    []string `json:"exclude_brands,omitempty"`
}

// IsEmpty 判断是否没有任何限制。排除项不算作限制。
func (c SearchCriteria) IsEmpty() bool {
	return len(c.SetParams()) == 0
}

// SetParams 返回当前已设置的检索参数名。
func (c SearchCriteria) SetParams() []string {
	var out []string
	if len(c.Keywords) > 0 {
		out = append(out, ParamKeywords)
	}
	if c.Color != "" {
		out = append(out, ParamColor)
	}
	if len(c.MustHaveFeatures) > 0 {
		out = append(out, ParamFeatures)
	}
	if c.Gearbox != "" {
		out = append(out, ParamGearbox)
	}
	if c.FuelType != "" {
		out = append(out, ParamFuelType)
	}
	if c.DriveType != "" {
		out = append(out, ParamDriveType)
	}
	if c.City != "" {
		out = append(out, ParamCity)
	}
	if c.MaxPrice > 0 {
		out = append(out, ParamMaxPrice)
	}
	if c.MinPrice > 0 {
		out = append(out, ParamMinPrice)
	}
	if c.MinYear > 0 {
		out = append(out, ParamMinYear)
	}
	if c.MaxYear > 0 {
		out = append(out, ParamMaxYear)
	}
	if c.Category != "" {
		out = append(out, ParamCategory)
	}
	if c.Model != "" {
		out = append(out, ParamModel)
	}
	if c.Brand != "" {
		out = append(out, ParamBrand)
	}
	return out
}

// Has 判断参数是否已设置。
func (c SearchCriteria) Has(param string) bool {
	for _, p := range c.SetParams() {
		if p == param {
			return true
		}
	}
	return false
}

// Clone 返回深拷贝。
func (c SearchCriteria) Clone() SearchCriteria {
	out := c
	out.Keywords = append([]string(nil), c.Keywords...)
	out.MustHaveFeatures = append([]string(nil), c.MustHaveFeatures...)
	out.ExcludeBrands = append([]string(nil), c.ExcludeBrands...)
	return out
}

// Merge 将 delta 叠加到当前条件上：非零标量覆盖，列表取并集去重。
// 结果不依赖接收者，重复合并同一 delta 得到相同结果。
func (c SearchCriteria) Merge(delta SearchCriteria) SearchCriteria {
	out := c.Clone()
	overrideString(&out.Brand, delta.Brand)
	overrideString(&out.Model, delta.Model)
	overrideString(&out.Category, delta.Category)
	overrideString(&out.Color, delta.Color)
	overrideString(&out.FuelType, delta.FuelType)
	overrideString(&out.Gearbox, delta.Gearbox)
	overrideString(&out.DriveType, delta.DriveType)
	overrideString(&out.City, delta.City)
	if delta.MinPrice > 0 {
		out.MinPrice = delta.MinPrice
	}
	if delta.MaxPrice > 0 {
		out.MaxPrice = delta.MaxPrice
	}
	if delta.MinYear > 0 {
		out.MinYear = delta.MinYear
	}
	if delta.MaxYear > 0 {
		out.MaxYear = delta.MaxYear
	}
	out.Keywords = UnionStrings(out.Keywords, delta.Keywords)
	out.MustHaveFeatures = UnionStrings(out.MustHaveFeatures, delta.MustHaveFeatures)
	out.ExcludeBrands = UnionStrings(out.ExcludeBrands, delta.ExcludeBrands)
	// 明确点名的品牌不再处于排除列表中
	if out.Brand != "" {
		out.ExcludeBrands = removeFold(out.ExcludeBrands, out.Brand)
	}
	return out
}

// Normalized 交换颠倒的价格与年份区间，返回修正后的条件以及是否发生过修正。
func (c SearchCriteria) Normalized() (SearchCriteria, bool) {
	out := c.Clone()
	fixed := false
	if out.MinPrice > 0 && out.MaxPrice > 0 && out.MinPrice > out.MaxPrice {
		out.MinPrice, out.MaxPrice = out.MaxPrice, out.MinPrice
		fixed = true
	}
	if out.MinYear > 0 && out.MaxYear > 0 && out.MinYear > out.MaxYear {
		out.MinYear, out.MaxYear = out.MaxYear, out.MinYear
		fixed = true
	}
	return out, fixed
}

// Excludes 判断品牌是否被排除。
func (c SearchCriteria) Excludes(brand string) bool {
	for _, b := range c.ExcludeBrands {
		if strings.EqualFold(b, brand) {
			return true
		}
	}
	return false
}

// UnionStrings 按出现顺序合并并去重（大小写不敏感）。
func UnionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		out = addUnique(out, v)
	}
	for _, v := range b {
		out = addUnique(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func overrideString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func removeFold(list []string, v string) []string {
	var out []string
	for _, x := range list {
		if !strings.EqualFold(x, v) {
			out = append(out, x)
		}
	}
	return out
}
