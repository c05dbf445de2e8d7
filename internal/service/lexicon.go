package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// 词典：俄语/拉丁写法到目录规范值的映射。
// stem 按前缀匹配，maxSuffix 限制允许的词尾长度（按字符计）。
type lexEntry struct {
	stem      string
	value     string
	maxSuffix int
}

var brandLexicon = []lexEntry{
	{"bmw", "BMW", 0}, {"бмв", "BMW", 0}, {"бэх", "BMW", 2},
	{"audi", "Audi", 0}, {"ауди", "Audi", 0},
	{"mercedes", "Mercedes-Benz", 0}, {"мерседес", "Mercedes-Benz", 3}, {"мерс", "Mercedes-Benz", 1},
	{"toyota", "Toyota", 0}, {"тойот", "Toyota", 1},
	{"lexus", "Lexus", 0}, {"лексус", "Lexus", 2},
	{"volkswagen", "Volkswagen", 0}, {"vw", "Volkswagen", 0}, {"фольксваген", "Volkswagen", 2},
	{"skoda", "Skoda", 0}, {"шкод", "Skoda", 1},
	{"kia", "Kia", 0}, {"киа", "Kia", 0},
	{"hyundai", "Hyundai", 0}, {"хендай", "Hyundai", 0}, {"хундай", "Hyundai", 0}, {"хендэ", "Hyundai", 0},
	{"nissan", "Nissan", 0}, {"ниссан", "Nissan", 2},
	{"mazda", "Mazda", 0}, {"мазд", "Mazda", 1},
	{"honda", "Honda", 0}, {"хонд", "Honda", 1},
	{"lada", "Lada", 0}, {"лад", "Lada", 1}, {"ваз", "Lada", 0},
	{"renault", "Renault", 0}, {"рено", "Renault", 0},
	{"volvo", "Volvo", 0}, {"вольво", "Volvo", 0},
	{"porsche", "Porsche", 0}, {"порше", "Porsche", 0},
	{"infiniti", "Infiniti", 0}, {"инфинити", "Infiniti", 0},
	{"chery", "Chery", 0}, {"чери", "Chery", 0},
	{"haval", "Haval", 0}, {"хавал", "Haval", 2},
	{"geely", "Geely", 0}, {"джили", "Geely", 0},
	{"mitsubishi", "Mitsubishi", 0}, {"мицубиси", "Mitsubishi", 0}, {"митсубиси", "Mitsubishi", 0},
	{"subaru", "Subaru", 0}, {"субару", "Subaru", 0},
	{"ford", "Ford", 0}, {"форд", "Ford", 2},
	{"chevrolet", "Chevrolet", 0}, {"шевроле", "Chevrolet", 0},
}

// 双词品牌按相邻两个 token 匹配。
var brandBigrams = map[string]string{
	"land rover":    "Land Rover",
	"ленд ровер":    "Land Rover",
	"лэнд ровер":    "Land Rover",
	"mercedes benz": "Mercedes-Benz",
	"range rover":   "Land Rover",
}

type modelEntry struct {
	brand string
	model string
}

var modelLexicon = map[string]modelEntry{
	"x3":        {"BMW", "X3"},
	"x5":        {"BMW", "X5"},
	"x6":        {"BMW", "X6"},
	"a4":        {"Audi", "A4"},
	"a6":        {"Audi", "A6"},
	"q5":        {"Audi", "Q5"},
	"q7":        {"Audi", "Q7"},
	"camry":     {"Toyota", "Camry"},
	"камри":     {"Toyota", "Camry"},
	"rav4":      {"Toyota", "RAV4"},
	"рав4":      {"Toyota", "RAV4"},
	"solaris":   {"Hyundai", "Solaris"},
	"солярис":   {"Hyundai", "Solaris"},
	"creta":     {"Hyundai", "Creta"},
	"крета":     {"Hyundai", "Creta"},
	"octavia":   {"Skoda", "Octavia"},
	"октавия":   {"Skoda", "Octavia"},
	"polo":      {"Volkswagen", "Polo"},
	"поло":      {"Volkswagen", "Polo"},
	"tiguan":    {"Volkswagen", "Tiguan"},
	"тигуан":    {"Volkswagen", "Tiguan"},
	"rio":       {"Kia", "Rio"},
	"рио":       {"Kia", "Rio"},
	"sportage":  {"Kia", "Sportage"},
	"спортейдж": {"Kia", "Sportage"},
	"vesta":     {"Lada", "Vesta"},
	"веста":     {"Lada", "Vesta"},
	"xc90":      {"Volvo", "XC90"},
}

var categoryLexicon = []lexEntry{
	{"внедорожник", "внедорожник", 3}, {"джип", "внедорожник", 2},
	{"кроссовер", "кроссовер", 3}, {"паркетник", "кроссовер", 3},
	{"седан", "седан", 3},
	{"хэтчбек", "хэтчбек", 3}, {"хетчбек", "хэтчбек", 3},
	{"универсал", "универсал", 3},
	{"минивэн", "минивэн", 3}, {"минивен", "минивэн", 3},
	{"купе", "купе", 0},
	{"пикап", "пикап", 3},
	{"лифтбек", "лифтбек", 3},
	{"кабриолет", "кабриолет", 3},
}

var fuelLexicon = []lexEntry{
	{"бензин", "бензин", 4},
	{"дизел", "дизель", 4},
	{"гибрид", "гибрид", 4},
	{"электромобил", "электро", 3}, {"электро", "электро", 0}, {"электрическ", "электро", 3},
}

var gearboxLexicon = []lexEntry{
	{"автомат", "автомат", 3}, {"акпп", "автомат", 0}, {"автоматическ", "автомат", 3},
	{"механик", "механика", 2}, {"мкпп", "механика", 0}, {"ручк", "механика", 2},
	{"робот", "робот", 2}, {"вариатор", "вариатор", 2},
}

// 颜色只在形容词词尾时匹配，避免 "серия" 之类误判。
var colorStems = []lexEntry{
	{"серебрист", "серебристый", 0},
	{"коричнев", "коричневый", 0},
	{"оранжев", "оранжевый", 0},
	{"черн", "черный", 0},
	{"бел", "белый", 0},
	{"сер", "серый", 0},
	{"син", "синий", 0},
	{"красн", "красный", 0},
	{"зелен", "зеленый", 0},
	{"бежев", "бежевый", 0},
	{"желт", "желтый", 0},
}

var featureLexicon = []lexEntry{
	{"панорам", "панорамная крыша", 4},
	{"подогрев", "подогрев сидений", 2},
	{"камер", "камера заднего вида", 2},
	{"круиз", "круиз-контроль", 2},
	{"навигац", "навигация", 3}, {"навигатор", "навигация", 2},
	{"люк", "люк", 2},
	{"парктроник", "парктроник", 3},
	{"климат", "климат-контроль", 2},
}

var cityLexicon = []lexEntry{
	{"москв", "Москва", 2}, {"мск", "Москва", 0},
	{"петербург", "Санкт-Петербург", 2}, {"спб", "Санкт-Петербург", 0}, {"питер", "Санкт-Петербург", 2},
	{"казан", "Казань", 1},
	{"екатеринбург", "Екатеринбург", 2},
	{"новосибирск", "Новосибирск", 2},
	{"краснодар", "Краснодар", 2},
}

var keywordStems = []lexEntry{
	{"семейн", "семейный", 0},
	{"экономичн", "экономичный", 0},
	{"спортивн", "спортивный", 0},
	{"надежн", "надежный", 0},
	{"комфортн", "комфортный", 0},
}

var adjectiveEndings = map[string]bool{
	"ый": true, "ая": true, "ое": true, "ого": true, "ую": true, "ые": true, "ых": true, "ой": true,
	"ий": true, "яя": true, "ее": true, "его": true, "юю": true, "ие": true, "их": true, "ым": true, "им": true,
}

// 相似品牌与相似车身类型，放宽时按顺序替换。
var similarBrandTable = map[string][]string{
	"BMW":           {"Audi", "Mercedes-Benz", "Lexus", "Volvo"},
	"Audi":          {"BMW", "Mercedes-Benz", "Volkswagen", "Volvo"},
	"Mercedes-Benz": {"BMW", "Audi", "Lexus"},
	"Lexus":         {"Toyota", "Infiniti", "BMW", "Audi"},
	"Toyota":        {"Honda", "Mazda", "Nissan", "Hyundai"},
	"Volkswagen":    {"Skoda", "Audi", "Hyundai", "Kia"},
	"Skoda":         {"Volkswagen", "Hyundai", "Kia"},
	"Kia":           {"Hyundai", "Skoda", "Nissan"},
	"Hyundai":       {"Kia", "Skoda", "Nissan"},
	"Nissan":        {"Toyota", "Mazda", "Mitsubishi"},
	"Mazda":         {"Toyota", "Honda", "Nissan"},
	"Honda":         {"Toyota", "Mazda"},
	"Lada":          {"Renault", "Kia", "Hyundai"},
	"Renault":       {"Lada", "Nissan", "Kia"},
	"Volvo":         {"Audi", "BMW", "Lexus"},
	"Porsche":       {"BMW", "Mercedes-Benz", "Audi"},
	"Infiniti":      {"Lexus", "Audi"},
	"Land Rover":    {"Volvo", "Audi", "BMW"},
	"Haval":         {"Chery", "Geely"},
	"Chery":         {"Haval", "Geely"},
	"Geely":         {"Haval", "Chery"},
	"Ford":          {"Volkswagen", "Skoda", "Chevrolet"},
	"Chevrolet":     {"Ford", "Kia"},
	"Mitsubishi":    {"Nissan", "Subaru", "Toyota"},
	"Subaru":        {"Mitsubishi", "Toyota"},
}

var similarCategoryTable = map[string][]string{
	"внедорожник": {"кроссовер", "пикап"},
	"кроссовер":   {"внедорожник", "универсал", "хэтчбек"},
	"седан":       {"лифтбек", "хэтчбек", "универсал"},
	"лифтбек":     {"седан", "хэтчбек"},
	"хэтчбек":     {"лифтбек", "седан", "кроссовер"},
	"универсал":   {"кроссовер", "лифтбек", "минивэн"},
	"минивэн":     {"универсал", "кроссовер"},
	"купе":        {"кабриолет", "седан"},
	"кабриолет":   {"купе"},
	"пикап":       {"внедорожник"},
}

// normalizeText 小写并把 ё 统一为 е。
func normalizeText(s string) string {
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "ё", "е")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(normalizeText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func matchStem(token string, e lexEntry) bool {
	if token == e.stem {
		return true
	}
	if e.maxSuffix == 0 || !strings.HasPrefix(token, e.stem) {
		return false
	}
	return utf8.RuneCountInString(token)-utf8.RuneCountInString(e.stem) <= e.maxSuffix
}

func matchAdjective(token, stem string) bool {
	if !strings.HasPrefix(token, stem) {
		return false
	}
	return adjectiveEndings[strings.TrimPrefix(token, stem)]
}

func lookup(token string, entries []lexEntry) (string, bool) {
	for _, e := range entries {
		if matchStem(token, e) {
			return e.value, true
		}
	}
	return "", false
}

func lookupAdjective(token string, entries []lexEntry) (string, bool) {
	for _, e := range entries {
		if matchAdjective(token, e.stem) {
			return e.value, true
		}
	}
	return "", false
}

// CanonicalBrand 把任意写法的品牌名映射到目录中的规范写法，未知品牌原样返回。
func CanonicalBrand(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	norm := normalizeText(raw)
	if v, ok := brandBigrams[strings.Join(strings.Fields(strings.ReplaceAll(norm, "-", " ")), " ")]; ok {
		return v
	}
	if v, ok := lookup(norm, brandLexicon); ok {
		return v
	}
	for canonical := range similarBrandTable {
		if strings.EqualFold(canonical, raw) {
			return canonical
		}
	}
	return raw
}

// CanonicalCategory 将车身类型归一为词典值，未知值小写返回。
func CanonicalCategory(raw string) string {
	norm := normalizeText(strings.TrimSpace(raw))
	if norm == "" {
		return ""
	}
	if v, ok := lookup(norm, categoryLexicon); ok {
		return v
	}
	return norm
}

func canonicalFrom(raw string, entries []lexEntry) string {
	norm := normalizeText(strings.TrimSpace(raw))
	if norm == "" {
		return ""
	}
	if v, ok := lookup(norm, entries); ok {
		return v
	}
	return norm
}

// similarBrands 返回相似品牌候选。
func similarBrands(brand string) []string {
	return similarBrandTable[CanonicalBrand(brand)]
}

func similarCategories(category string) []string {
	return similarCategoryTable[CanonicalCategory(category)]
}

// mentionsVehicle 判断文本是否包含任何车辆相关词。
func mentionsVehicle(text string) bool {
	tokens := tokenize(text)
	for i, t := range tokens {
		if _, ok := lookup(t, brandLexicon); ok {
			return true
		}
		if i+1 < len(tokens) {
			if _, ok := brandBigrams[t+" "+tokens[i+1]]; ok {
				return true
			}
		}
		if _, ok := modelLexicon[t]; ok {
			return true
		}
		for _, entries := range [][]lexEntry{categoryLexicon, fuelLexicon, gearboxLexicon, featureLexicon} {
			if _, ok := lookup(t, entries); ok {
				return true
			}
		}
		for _, stem := range vehicleStems {
			if strings.HasPrefix(t, stem) {
				return true
			}
		}
	}
	return false
}

var vehicleStems = []string{"машин", "авто", "тачк", "подбер", "найд", "покаж", "ищу", "купить", "бюджет", "привод", "пробег"}
