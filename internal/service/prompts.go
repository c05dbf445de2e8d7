package service

import (
	"auto-advisor-go/internal/model"
	"encoding/json"
	"fmt"
	"strings"
)

func buildRelaxPrompt(req SearchRequest, current model.SearchCriteria, candidates []string) string {
	criteria, _ := json.Marshal(current)
	var b strings.Builder
	b.WriteString("По запросу пользователя в каталоге автомобилей ничего не нашлось.\n")
	b.WriteString("Выбери один параметр, который пользователю наименее важен и который можно ослабить.\n")
	fmt.Fprintf(&b, "Допустимые параметры: %s.\n", strings.Join(candidates, ", "))
	b.WriteString("Верни только JSON: {\"parameter\": \"...\"}.\n")
	fmt.Fprintf(&b, "Текущие параметры: %s\n", criteria)
	if req.Context != "" {
		fmt.Fprintf(&b, "Контекст диалога:\n%s\n", req.Context)
	}
	fmt.Fprintf(&b, "Запрос: %s", req.Utterance)
	return b.String()
}

func buildSubstitutePrompt(req SearchRequest, param string, options []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Нужно заменить параметр %q похожим значением.\n", param)
	fmt.Fprintf(&b, "Упорядочи варианты от наиболее к наименее подходящему: %s.\n", strings.Join(options, ", "))
	b.WriteString("Используй только перечисленные варианты. Верни только JSON: {\"order\": [\"...\"]}.\n")
	fmt.Fprintf(&b, "Запрос пользователя: %s", req.Utterance)
	return b.String()
}

func buildRecommendPrompt(req SearchRequest, window []model.CatalogItem) string {
	criteria, _ := json.Marshal(req.Criteria)
	var b strings.Builder
	b.WriteString("Подходящих автомобилей по запросу нет. Из списка ниже выбери наиболее близкие варианты.\n")
	b.WriteString("Верни только JSON: {\"ids\": [\"...\"], \"reason\": \"короткое объяснение на русском\"}.\n")
	fmt.Fprintf(&b, "Параметры пользователя: %s\n", criteria)
	fmt.Fprintf(&b, "Запрос: %s\n", req.Utterance)
	b.WriteString("Каталог:\n")
	for _, it := range window {
		fmt.Fprintf(&b, "%s | %s | %d | %s | %s\n", it.ID, it.Title(), it.Year, formatPrice(it.Price), it.Category)
	}
	return b.String()
}

// replyFacts 是起草回复所需的全部事实。
type replyFacts struct {
	Utterance  string
	Context    string
	Capability model.Capability
	Result     *model.SearchResult
	Stats      *CatalogStats
	Memories   []model.ScoredMemory
	Loan       *LoanQuote
	// CatalogDown 表示本轮无法访问车源目录。
	CatalogDown bool
}

const catalogDownPromptLine = "Каталог сейчас недоступен: не называй конкретные автомобили и цены, предложи уточнить пожелания, чтобы продолжить подбор.\n"

func buildReplyPrompt(f replyFacts) string {
	var b strings.Builder
	b.WriteString("Ты консультант автосалона. Отвечай по-русски, кратко и дружелюбно.\n")
	b.WriteString("Используй только факты ниже, не придумывай автомобили и цены.\n")
	if f.Context != "" {
		fmt.Fprintf(&b, "Контекст диалога:\n%s\n", f.Context)
	}
	if len(f.Memories) > 0 {
		b.WriteString("Что известно о пользователе:\n")
		for _, m := range f.Memories {
			fmt.Fprintf(&b, "- %s\n", m.Record.Text)
		}
	}
	if f.CatalogDown {
		b.WriteString(catalogDownPromptLine)
	}
	if f.Result != nil && !f.CatalogDown {
		fmt.Fprintf(&b, "Стратегия поиска: %s (уверенность %.2f)\n", f.Result.Strategy, f.Result.Confidence)
		if f.Result.Explanation != "" {
			fmt.Fprintf(&b, "Пояснение: %s\n", f.Result.Explanation)
		}
		b.WriteString(formatItems(f.Result.Items, 5))
	}
	if f.Stats != nil {
		b.WriteString(formatStats(*f.Stats))
		b.WriteString("\n")
	}
	if f.Loan != nil {
		b.WriteString("Расчёт кредита (приведи цифры без изменений):\n")
		b.WriteString(formatLoan(*f.Loan))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Сообщение пользователя: %s", f.Utterance)
	return b.String()
}
