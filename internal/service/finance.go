package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	topicFinance      = "финансирование"
	maxLoanTermMonths = 120
)

var (
	financeMarkers = []string{"кредит", "лизинг", "рассрочк", "ежемесячн", "платеж", "взнос", "финансир", "посчитай", "рассчитай"}

	loanYearsRe  = regexp.MustCompile(`(\d+)\s*(?:лет|года|год)`)
	loanMonthsRe = regexp.MustCompile(`(\d+)\s*мес`)
	downRe       = regexp.MustCompile(`взнос\P{N}{0,20}?(\d+(?:[.,]\d+)?)\s*%`)
	rateRe       = regexp.MustCompile(`(?:под|ставк\p{L}*)\s*(\d+(?:[.,]\d+)?)\s*%`)
)

// LoanTerms 是一次贷款试算的条件，AnnualRate 为年利率百分比。
type LoanTerms struct {
	DownPaymentPercent float64 `json:"down_payment_percent"`
	AnnualRate         float64 `json:"annual_rate"`
	TermMonths         int     `json:"term_months"`
}

// LoanQuote 是等额本息试算结果。首付覆盖车价时 LoanAmount 与月供均为 0。
type LoanQuote struct {
	ItemID         string    `json:"item_id"`
	Title          string    `json:"title"`
	Price          float64   `json:"price"`
	Terms          LoanTerms `json:"terms"`
	DownPayment    float64   `json:"down_payment"`
	LoanAmount     float64   `json:"loan_amount"`
	MonthlyPayment float64   `json:"monthly_payment"`
	TotalPayment   float64   `json:"total_payment"`
	TotalInterest  float64   `json:"total_interest"`
}

// isFinanceQuery 判断发言是否在询问贷款、分期或月供。
func isFinanceQuery(text string) bool {
	return containsMarker(normalizeText(text), financeMarkers)
}

// loanTermsFrom 以配置为默认值，读取发言中给出的期限、首付比例与利率。
func loanTermsFrom(text string, cfg config.AssistantConfig) LoanTerms {
	terms := LoanTerms{
		DownPaymentPercent: cfg.LoanDownPaymentPercent,
		AnnualRate:         cfg.LoanAnnualRate,
		TermMonths:         cfg.LoanTermMonths,
	}
	norm := normalizeText(text)
	if m := loanMonthsRe.FindStringSubmatch(norm); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= maxLoanTermMonths {
			terms.TermMonths = n
		}
	} else if m := loanYearsRe.FindStringSubmatch(norm); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n*12 <= maxLoanTermMonths {
			terms.TermMonths = n * 12
		}
	}
	if m := downRe.FindStringSubmatch(norm); m != nil {
		if v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil && v >= 0 && v <= 100 {
			terms.DownPaymentPercent = v
		}
	}
	if m := rateRe.FindStringSubmatch(norm); m != nil {
		if v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil && v >= 0 && v < 100 {
			terms.AnnualRate = v
		}
	}
	if terms.TermMonths <= 0 {
		terms.TermMonths = config.DefaultAssistantConfig().LoanTermMonths
	}
	return terms
}

// CalculateLoan 按等额本息计算月供，利率为 0 时按本金平均分摊。
func CalculateLoan(item model.CatalogItem, terms LoanTerms) LoanQuote {
	q := LoanQuote{ItemID: item.ID, Title: item.Title(), Price: item.Price, Terms: terms}
	q.DownPayment = math.Round(item.Price * terms.DownPaymentPercent / 100)
	principal := item.Price - q.DownPayment
	if principal <= 0 || terms.TermMonths <= 0 {
		q.DownPayment = item.Price
		q.TotalPayment = item.Price
		return q
	}
	n := float64(terms.TermMonths)
	monthly := principal / n
	if r := terms.AnnualRate / 100 / 12; r > 0 {
		k := math.Pow(1+r, n)
		monthly = principal * r * k / (k - 1)
	}
	q.LoanAmount = math.Round(principal)
	q.MonthlyPayment = math.Round(monthly)
	q.TotalPayment = math.Round(monthly*n + q.DownPayment)
	q.TotalInterest = math.Round(monthly*n - principal)
	return q
}

func formatLoan(q LoanQuote) string {
	if q.LoanAmount == 0 {
		return fmt.Sprintf("Первоначальный взнос покрывает стоимость %s (%s), кредит не нужен.", q.Title, formatPrice(q.Price))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Расчёт кредита для %s (%s):\n", q.Title, formatPrice(q.Price))
	fmt.Fprintf(&b, "первоначальный взнос %s (%s%%), сумма кредита %s,\n",
		formatPrice(q.DownPayment), strconv.FormatFloat(q.Terms.DownPaymentPercent, 'f', -1, 64), formatPrice(q.LoanAmount))
	fmt.Fprintf(&b, "ставка %s%% годовых на %d мес.: ежемесячный платёж %s, переплата %s.",
		strconv.FormatFloat(q.Terms.AnnualRate, 'f', -1, 64), q.Terms.TermMonths, formatPrice(q.MonthlyPayment), formatPrice(q.TotalInterest))
	return b.String()
}
