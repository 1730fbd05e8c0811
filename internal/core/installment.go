package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType tags one line of a payment schedule.
type PaymentType string

const (
	PaymentInitial      PaymentType = "initial_payment"
	PaymentMonthly      PaymentType = "monthly_payment"
	PaymentDownPayment  PaymentType = "dp_payment"
	PaymentMortgageBody PaymentType = "mortgage_body"
)

// PaymentEntry is one scheduled payment. Month 0 is the signing-day payment.
type PaymentEntry struct {
	MonthNumber int             `json:"month_number"`
	Date        time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        PaymentType     `json:"type"`
}

// Pmt is the annuity payment for principal P over n monthly periods at the
// monthly rate r: P·r·(1+r)ⁿ / ((1+r)ⁿ − 1). A zero rate degenerates to P/n.
func Pmt(monthlyRate, principal decimal.Decimal, termMonths int) decimal.Decimal {
	n := decimal.NewFromInt(int64(termMonths))
	if monthlyRate.IsZero() {
		return principal.Div(n)
	}
	one := decimal.NewFromInt(1)
	growth := one.Add(monthlyRate).Pow(n)
	return principal.Mul(monthlyRate).Mul(growth).Div(growth.Sub(one))
}

// addMonths advances a date by whole calendar months, clamping the day to the
// target month's length (Jan 31 + 1 month = Feb 28/29).
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(firstOfTarget); d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, t.Location())
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

// monthsBetween counts whole calendar months from a to b, zero when b is not
// after a. Partial months are truncated.
func monthsBetween(a, b time.Time) int {
	if !b.After(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// monthlySchedule builds a schedule of term equal payments starting one month
// after start, with an optional month-0 entry prepended by the caller.
func monthlySchedule(start time.Time, term int, amount decimal.Decimal, typ PaymentType) []PaymentEntry {
	out := make([]PaymentEntry, 0, term)
	for i := 1; i <= term; i++ {
		out = append(out, PaymentEntry{
			MonthNumber: i,
			Date:        addMonths(start, i),
			Amount:      amount,
			Type:        typ,
		})
	}
	return out
}

// floorPercent truncates a theoretical discount percentage toward negative
// infinity, the contract form offered to the buyer.
func floorPercent(pct decimal.Decimal) decimal.Decimal {
	return pct.Floor()
}
