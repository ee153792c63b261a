package service

import (
	"strings"

	"bazari/config"
	"bazari/internal/domain"
	"bazari/pkg/razorpay"
)

// Policy applies the currency and card-issuer-country eligibility rules to a
// gateway payment snapshot.
type Policy struct {
	Currency    string // accepted settlement currency, e.g. "INR"
	CardCountry string // accepted card issuer country, e.g. "IN"
}

func NewPolicy(cfg *config.RazorpayConfig) *Policy {
	return &Policy{Currency: cfg.Currency, CardCountry: cfg.CardCountry}
}

type PolicyResult struct {
	Accepted bool
	Reason   string // rejection reason when not accepted
}

// Evaluate applies the rules in order: currency first, then issuer country
// for card payments. A card snapshot without issuer country data passes:
// Razorpay omits card.country for many domestic issuers, and rejecting on
// missing data would fail legitimate local cards.
func (p *Policy) Evaluate(snap *razorpay.PaymentSnapshot) PolicyResult {
	if !strings.EqualFold(snap.Currency, p.Currency) {
		return PolicyResult{Reason: domain.RejectCurrencyMismatch}
	}
	if snap.Method == razorpay.MethodCard && snap.Card != nil && snap.Card.Country != "" {
		if !strings.EqualFold(snap.Card.Country, p.CardCountry) {
			return PolicyResult{Reason: domain.RejectIssuerCountryMismatch}
		}
	}
	return PolicyResult{Accepted: true}
}
