package service

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateLoan(t *testing.T) {
	item := model.CatalogItem{ID: "audi-a3", Brand: "Audi", Model: "A3", Year: 2023, Price: 1000000}

	q := CalculateLoan(item, LoanTerms{DownPaymentPercent: 20, AnnualRate: 12, TermMonths: 60})
	assert.Equal(t, "audi-a3", q.ItemID)
	assert.Equal(t, float64(200000), q.DownPayment)
	assert.Equal(t, float64(800000), q.LoanAmount)
	assert.InDelta(t, 17796, q.MonthlyPayment, 1)
	assert.InDelta(t, q.MonthlyPayment*60+200000, q.TotalPayment, 60)
	assert.InDelta(t, q.MonthlyPayment*60-800000, q.TotalInterest, 60)

	zero := CalculateLoan(item, LoanTerms{DownPaymentPercent: 0, AnnualRate: 0, TermMonths: 40})
	assert.Equal(t, float64(25000), zero.MonthlyPayment)
	assert.Zero(t, zero.TotalInterest)
	assert.Equal(t, float64(1000000), zero.TotalPayment)

	cash := CalculateLoan(item, LoanTerms{DownPaymentPercent: 100, AnnualRate: 12, TermMonths: 60})
	assert.Zero(t, cash.LoanAmount)
	assert.Zero(t, cash.MonthlyPayment)
	assert.Equal(t, float64(1000000), cash.DownPayment)
	assert.Equal(t, float64(1000000), cash.TotalPayment)
}

func TestLoanTermsFrom(t *testing.T) {
	cfg := config.DefaultAssistantConfig()
	defaults := LoanTerms{DownPaymentPercent: cfg.LoanDownPaymentPercent, AnnualRate: cfg.LoanAnnualRate, TermMonths: cfg.LoanTermMonths}

	tests := []struct {
		text string
		want LoanTerms
	}{
		{"рассчитай кредит", defaults},
		{"кредит на 3 года", LoanTerms{DownPaymentPercent: defaults.DownPaymentPercent, AnnualRate: defaults.AnnualRate, TermMonths: 36}},
		{"рассрочка на 18 месяцев", LoanTerms{DownPaymentPercent: defaults.DownPaymentPercent, AnnualRate: defaults.AnnualRate, TermMonths: 18}},
		{"первоначальный взнос 30%", LoanTerms{DownPaymentPercent: 30, AnnualRate: defaults.AnnualRate, TermMonths: defaults.TermMonths}},
		{"кредит под 9,5% на 5 лет", LoanTerms{DownPaymentPercent: defaults.DownPaymentPercent, AnnualRate: 9.5, TermMonths: 60}},
		{"кредит на машину 2020 года", defaults},
		{"взнос 150%", defaults},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, loanTermsFrom(tt.text, cfg))
		})
	}

	var empty config.AssistantConfig
	assert.Equal(t, cfg.LoanTermMonths, loanTermsFrom("кредит", empty).TermMonths)
}

func TestIsFinanceQuery(t *testing.T) {
	assert.True(t, isFinanceQuery("Рассчитай кредит"))
	assert.True(t, isFinanceQuery("какой будет ежемесячный платеж?"))
	assert.True(t, isFinanceQuery("Можно в рассрочку?"))
	assert.False(t, isFinanceQuery("Хочу внедорожник до 2 млн"))
	assert.False(t, isFinanceQuery("Привет"))
}

func TestFormatLoan(t *testing.T) {
	item := model.CatalogItem{ID: "audi-a3", Brand: "Audi", Model: "A3", Year: 2023, Price: 1000000}

	text := formatLoan(CalculateLoan(item, LoanTerms{DownPaymentPercent: 20, AnnualRate: 12, TermMonths: 60}))
	assert.Contains(t, text, "Расчёт кредита для "+item.Title())
	assert.Contains(t, text, "200 000 ₽ (20%)")
	assert.Contains(t, text, "800 000 ₽")
	assert.Contains(t, text, "12% годовых на 60 мес.")

	cash := formatLoan(CalculateLoan(item, LoanTerms{DownPaymentPercent: 100, AnnualRate: 12, TermMonths: 60}))
	assert.Contains(t, cash, "кредит не нужен")
}
