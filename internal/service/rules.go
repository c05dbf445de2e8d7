package service

import (
	"auto-advisor-go/internal/model"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// relativeKind 是“подешевле”一类相对表达。
type relativeKind string

const (
	relativeNone    relativeKind = ""
	relativeCheaper relativeKind = "cheaper"
	relativePricier relativeKind = "pricier"
	relativeNewer   relativeKind = "newer"
)

const (
	minCatalogYear  = 1950
	maxCatalogYear  = 2100
	pricierRatio    = 1.2
	newerYearStep   = 2
	markerWindow    = 24
	defaultNewerAge = 3
)

// ruleParse 是确定性解析的结果。numeric 为 true 表示价格或年份来自文本中的数字，
// 与 oracle 结果冲突时以它为准。
type ruleParse struct {
	delta    model.SearchCriteria
	numeric  bool
	relative relativeKind
}

type parseOptions struct {
	cheaperRatio float64
	now          time.Time
}

type direction int

const (
	dirNone direction = iota
	dirMin
	dirMax
)

const unitPattern = `млн|миллион\p{L}*|лям\p{L}*|тыс\p{L}*|тр|k|к|руб\p{L}*|р`

var (
	groupedRe    = regexp.MustCompile(`(?:^|[^\p{L}\d.,])(\d{1,3}(?: \d{3})+)`)
	amountRe     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:(` + unitPattern + `)(?:\P{L}|$))?`)
	wordAmountRe = regexp.MustCompile(`(полтора|полутора|один|одного|два|двух|три|трех|четыре|четырех|пять|пяти)?\s*(млн|миллион\p{L}*|лям\p{L}*)`)
	ageRe        = regexp.MustCompile(`не\s+старше\s+(\d+)\s*(?:лет|год\p{L}*)`)
	mileageRe    = regexp.MustCompile(`^\s*(?:тыс\p{L}*\.?\s*)?км`)
)

var wordMultipliers = map[string]float64{
	"": 1, "один": 1, "одного": 1,
	"полтора": 1.5, "полутора": 1.5,
	"два": 2, "двух": 2,
	"три": 3, "трех": 3,
	"четыре": 4, "четырех": 4,
	"пять": 5, "пяти": 5,
}

var priceMarkers = map[string]direction{
	"до": dirMax, "под": dirMax, "не дороже": dirMax, "дешевле": dirMax, "не больше": dirMax,
	"максимум": dirMax, "в пределах": dirMax, "бюджет": dirMax, "за": dirMax, "не более": dirMax,
	"около": dirMax, "примерно": dirMax, "в районе": dirMax,
	"от": dirMin, "дороже": dirMin, "не дешевле": dirMin, "минимум": dirMin, "больше": dirMin,
	"более": dirMin, "свыше": dirMin,
}

var yearMarkers = map[string]direction{
	"от": dirMin, "с": dirMin, "после": dirMin, "новее": dirMin, "не старше": dirMin,
	"не раньше": dirMin, "моложе": dirMin,
	"до": dirMax, "старше": dirMax, "не новее": dirMax, "не позже": dirMax, "раньше": dirMax,
}

var (
	negationWords  = map[string]bool{"кроме": true, "не": true, "без": true, "исключая": true}
	negationKeeps  = map[string]bool{"хочу": true, "нравится": true, "нравятся": true, "рассматриваю": true, "надо": true, "нужен": true, "нужно": true, "нужна": true, "предлагай": true, "показывай": true, "интересует": true, "и": true, "или": true, "а": true, "только": true}
	cheaperWords   = []string{"подешевле", "дешевле", "бюджетнее"}
	pricierWords   = []string{"подороже", "дороже"}
	newerWords     = []string{"поновее", "посвежее", "новее", "свежее"}
	mileageMarkers = []string{"пробег"}
)

// parseUtterance 用词典与正则从一句话中提取检索条件增量。
func parseUtterance(text string, prior model.SearchCriteria, referencePrice float64, opts parseOptions) ruleParse {
	var res ruleParse
	parseCategorical(text, &res.delta)

	norm := normalizeText(text)
	norm = collapseGroups(norm)
	if m := ageRe.FindStringSubmatchIndex(norm); m != nil {
		if n, err := strconv.Atoi(norm[m[2]:m[3]]); err == nil && n >= 0 && n < 100 {
			res.delta.MinYear = opts.now.Year() - n
			res.numeric = true
		}
		norm = norm[:m[0]] + strings.Repeat(" ", m[1]-m[0]) + norm[m[1]:]
	}
	if parseNumbers(norm, &res.delta) {
		res.numeric = true
	}

	if res.delta.MaxPrice == 0 && res.delta.MinPrice == 0 {
		base := prior.MaxPrice
		if base == 0 {
			base = referencePrice
		}
		switch {
		case containsWord(norm, cheaperWords):
			res.relative = relativeCheaper
			if base > 0 {
				res.delta.MaxPrice = math.Round(base * opts.cheaperRatio)
			}
		case containsWord(norm, pricierWords):
			res.relative = relativePricier
			if base > 0 {
				res.delta.MaxPrice = math.Round(base * pricierRatio)
			}
		}
	}
	if res.delta.MinYear == 0 && res.delta.MaxYear == 0 && containsWord(norm, newerWords) {
		res.relative = relativeNewer
		if prior.MinYear > 0 {
			res.delta.MinYear = prior.MinYear + newerYearStep
		} else {
			res.delta.MinYear = opts.now.Year() - defaultNewerAge
		}
	}
	return res
}

// parseCategorical 解析品牌、型号、车身、颜色等离散条件以及排除的品牌。
func parseCategorical(text string, delta *model.SearchCriteria) {
	tokens := tokenize(text)
	negating := false
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if negationWords[t] {
			negating = true
			continue
		}

		brand, width := brandAt(tokens, i)
		if brand != "" {
			if negating {
				delta.ExcludeBrands = model.UnionStrings(delta.ExcludeBrands, []string{brand})
			} else if delta.Brand == "" {
				delta.Brand = brand
			}
			i += width - 1
			continue
		}
		if m, ok := modelLexicon[t]; ok && !negating {
			if delta.Brand == "" {
				delta.Brand = m.brand
			}
			if strings.EqualFold(delta.Brand, m.brand) && delta.Model == "" {
				delta.Model = m.model
			}
			continue
		}
		if negating && negationKeeps[t] {
			continue
		}
		wasNegating := negating
		negating = false

		if v, ok := lookup(t, categoryLexicon); ok {
			if !wasNegating && delta.Category == "" {
				delta.Category = v
			}
			continue
		}
		if v, ok := lookup(t, fuelLexicon); ok && delta.FuelType == "" {
			delta.FuelType = v
			continue
		}
		if v, ok := lookup(t, gearboxLexicon); ok && delta.Gearbox == "" {
			delta.Gearbox = v
			continue
		}
		if v := driveAt(tokens, i); v != "" && delta.DriveType == "" {
			delta.DriveType = v
			continue
		}
		if v, ok := lookupAdjective(t, colorStems); ok && delta.Color == "" {
			delta.Color = v
			continue
		}
		if v, ok := lookup(t, featureLexicon); ok {
			if !wasNegating {
				delta.MustHaveFeatures = model.UnionStrings(delta.MustHaveFeatures, []string{v})
			}
			continue
		}
		if v, ok := lookup(t, cityLexicon); ok && delta.City == "" {
			delta.City = v
			continue
		}
		if v, ok := lookupAdjective(t, keywordStems); ok {
			delta.Keywords = model.UnionStrings(delta.Keywords, []string{v})
		}
	}
}

func brandAt(tokens []string, i int) (string, int) {
	if i+1 < len(tokens) {
		if v, ok := brandBigrams[tokens[i]+" "+tokens[i+1]]; ok {
			return v, 2
		}
	}
	if v, ok := lookup(tokens[i], brandLexicon); ok {
		return v, 1
	}
	return "", 0
}

func driveAt(tokens []string, i int) string {
	t := tokens[i]
	switch t {
	case "4wd", "awd", "4x4", "4х4", "полноприводный", "полноприводная", "полноприводные":
		return "полный"
	}
	if strings.HasPrefix(t, "переднеприводн") {
		return "передний"
	}
	if strings.HasPrefix(t, "заднеприводн") {
		return "задний"
	}
	if i+1 >= len(tokens) || !strings.HasPrefix(tokens[i+1], "привод") {
		return ""
	}
	switch {
	case matchAdjective(t, "полн"):
		return "полный"
	case matchAdjective(t, "передн"):
		return "передний"
	case matchAdjective(t, "задн"):
		return "задний"
	}
	return ""
}

type amount struct {
	start, end int
	value      float64
	unit       string
}

// parseNumbers 解析价格与年份，返回是否找到任何数值条件。
func parseNumbers(norm string, delta *model.SearchCriteria) bool {
	var amounts []amount
	for _, m := range amountRe.FindAllStringSubmatchIndex(norm, -1) {
		v, err := strconv.ParseFloat(strings.Replace(norm[m[2]:m[3]], ",", ".", 1), 64)
		if err != nil {
			continue
		}
		a := amount{start: m[0], end: m[3], value: v}
		if m[4] >= 0 {
			a.unit = norm[m[4]:m[5]]
			a.end = m[5]
		}
		amounts = append(amounts, a)
	}
	for _, m := range wordAmountRe.FindAllStringSubmatchIndex(norm, -1) {
		start := m[0]
		if m[2] < 0 {
			start = m[4]
		}
		if overlaps(amounts, start, m[1]) || (start > 0 && !isBoundary(norm, start)) {
			continue
		}
		word := ""
		if m[2] >= 0 {
			word = norm[m[2]:m[3]]
		}
		amounts = append(amounts, amount{start: start, end: m[1], value: wordMultipliers[word], unit: "млн"})
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].start < amounts[j].start })

	found := false
	prevEnd := 0
	prevYear := false
	for idx, a := range amounts {
		prefix := windowBefore(norm, prevEnd, a.start)
		between := strings.TrimSpace(norm[prevEnd:a.start])
		wasYear := prevYear
		prevEnd, prevYear = a.end, false
		if containsWord(prefix, mileageMarkers) || mileageRe.MatchString(norm[a.end:]) {
			continue
		}
		unit := a.unit
		// "от 1 до 2 млн" 中第一个数沿用第二个数的单位，年份不参与
		if unit == "" && !isYear(a.value) && idx+1 < len(amounts) && amounts[idx+1].unit != "" &&
			nearestMarker(prefix, priceMarkers) == dirMin &&
			strings.HasSuffix(strings.TrimSpace(norm[a.end:amounts[idx+1].start]), "до") {
			unit = amounts[idx+1].unit
		}
		if price, ok := toPrice(a.value, unit); ok {
			switch nearestMarker(prefix, priceMarkers) {
			case dirMin:
				delta.MinPrice = price
			default:
				delta.MaxPrice = price
			}
			found = true
			continue
		}
		if year, ok := toYear(a.value, unit); ok {
			prevYear = true
			if wasYear && (between == "-" || between == "–" || between == "—") {
				delta.MaxYear = year
				found = true
				continue
			}
			switch nearestMarker(prefix, yearMarkers) {
			case dirMin:
				delta.MinYear = year
			case dirMax:
				delta.MaxYear = year
			default:
				delta.MinYear, delta.MaxYear = year, year
			}
			found = true
		}
	}
	return found
}

// collapseGroups 把 "2 000 000" 这样的分组数字合并为 "2000000"。
// 左侧分组必须是独立的 1 到 3 位数字，年份或型号里的数字不会与后面的数字合并。
func collapseGroups(s string) string {
	matches := groupedRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		if end < len(s) && s[end] >= '0' && s[end] <= '9' {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString(strings.ReplaceAll(s[start:end], " ", ""))
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

func toPrice(v float64, unit string) (float64, bool) {
	switch {
	case unit == "млн" || strings.HasPrefix(unit, "миллион") || strings.HasPrefix(unit, "лям"):
		return math.Round(v * 1e6), v > 0
	case strings.HasPrefix(unit, "тыс") || unit == "тр" || unit == "k" || unit == "к":
		return math.Round(v * 1e3), v > 0
	case strings.HasPrefix(unit, "руб") || unit == "р":
		return math.Round(v), v > 0
	case unit == "" && v >= 10000 && !isYear(v):
		return math.Round(v), true
	}
	return 0, false
}

func toYear(v float64, unit string) (int, bool) {
	if unit != "" || !isYear(v) {
		return 0, false
	}
	return int(v), true
}

func isYear(v float64) bool {
	return v == math.Trunc(v) && v >= minCatalogYear && v <= maxCatalogYear
}

func overlaps(amounts []amount, start, end int) bool {
	for _, a := range amounts {
		if start < a.end && end > a.start {
			return true
		}
	}
	return false
}

// windowBefore 返回 pos 之前至多 markerWindow 个字符，且不越过上一个数字。
func windowBefore(s string, floor, pos int) string {
	start := pos
	for n := 0; n < markerWindow && start > floor; n++ {
		_, size := utf8.DecodeLastRuneInString(s[:start])
		start -= size
	}
	return s[start:pos]
}

// nearestMarker 返回离数字最近的标记词对应的方向，结尾位置相同时取更长的标记。
func nearestMarker(prefix string, markers map[string]direction) direction {
	bestEnd, bestLen := -1, 0
	best := dirNone
	for m, dir := range markers {
		i := lastWordIndex(prefix, m)
		if i < 0 {
			continue
		}
		end := i + len(m)
		if end > bestEnd || (end == bestEnd && len(m) > bestLen) {
			bestEnd, bestLen, best = end, len(m), dir
		}
	}
	return best
}

// lastWordIndex 查找整词出现的最后位置。
func lastWordIndex(s, word string) int {
	end := len(s)
	for end > 0 {
		i := strings.LastIndex(s[:end], word)
		if i < 0 {
			return -1
		}
		if isBoundary(s, i) && isBoundary(s, i+len(word)) {
			return i
		}
		end = i
	}
	return -1
}

// isBoundary 判断 pos 两侧是否不全是字母。
func isBoundary(s string, pos int) bool {
	if pos <= 0 || pos >= len(s) {
		return true
	}
	before, _ := utf8.DecodeLastRuneInString(s[:pos])
	after, _ := utf8.DecodeRuneInString(s[pos:])
	return !unicode.IsLetter(before) || !unicode.IsLetter(after)
}

func containsWord(s string, words []string) bool {
	for _, w := range words {
		if lastWordIndex(s, w) >= 0 {
			return true
		}
	}
	return false
}
