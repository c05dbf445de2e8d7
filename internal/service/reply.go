package service

import (
	"auto-advisor-go/internal/model"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	genericFailureReply  = "Не получилось обработать запрос прямо сейчас. Попробуйте, пожалуйста, чуть позже."
	smalltalkReply       = "Здравствуйте! Я помогу подобрать автомобиль: расскажите о бюджете, марке или типе кузова."
	knowledgeReply       = "Пока не могу подробно ответить на этот вопрос. Зато могу подобрать автомобиль по вашим параметрам."
	financeNoTargetReply = "Чтобы рассчитать кредит, выберите автомобиль: назовите марку и модель или бюджет, и я подберу варианты."
	listedItems          = 5
)

// formatPrice 按俄语习惯以空格分隔千位："1 200 000 ₽"。
func formatPrice(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, ch := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(ch)
	}
	out := b.String() + " ₽"
	if neg {
		return "-" + out
	}
	return out
}

func formatItem(it model.CatalogItem) string {
	s := fmt.Sprintf("%s, %d г., %s", it.Title(), it.Year, formatPrice(it.Price))
	if it.City != "" {
		s += " (" + it.City + ")"
	}
	return s
}

func formatItems(items []model.CatalogItem, limit int) string {
	var b strings.Builder
	for i, it := range items {
		if i >= limit {
			fmt.Fprintf(&b, "…и ещё %d\n", len(items)-limit)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, formatItem(it))
	}
	return b.String()
}

// templateReply 在 oracle 不可用时根据检索结果生成回复。
func templateReply(result *model.SearchResult) string {
	if result == nil {
		return genericFailureReply
	}
	var b strings.Builder
	switch result.Strategy {
	case model.StrategyExact:
		fmt.Fprintf(&b, "Нашёл подходящих вариантов: %d.\n", len(result.Items))
	case model.StrategyRelaxed:
		b.WriteString("Точных совпадений не нашлось, поэтому я расширил поиск: ")
		b.WriteString(result.Explanation)
		b.WriteString(".\nВот что есть:\n")
	default:
		if len(result.Items) == 0 {
			b.WriteString("Подходящих вариантов по заданным условиям нет.")
			if result.Explanation != "" {
				b.WriteString(" ")
				b.WriteString(result.Explanation)
			}
			return b.String()
		}
		b.WriteString("Подходящих вариантов по заданным условиям нет. ")
		b.WriteString(result.Explanation)
		b.WriteString("\nВозможно, вас заинтересуют:\n")
	}
	b.WriteString(formatItems(result.Items, listedItems))
	return strings.TrimRight(b.String(), "\n")
}
