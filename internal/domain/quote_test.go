package domain_test

import (
	"strings"
	"testing"

	"github.com/waabox/quotedeck/internal/domain"
)

func TestQuote_Total(t *testing.T) {
	q := domain.Quote{Lines: []domain.QuoteLine{
		{Description: "Design", Quantity: 2, UnitPrice: 150},
		{Description: "Hosting", Quantity: 12, UnitPrice: 9.5},
	}}
	if got := q.Total(); got != 414 {
		t.Errorf("expected total 414, got %v", got)
	}
}

func TestQuoteDraft_Validate(t *testing.T) {
	valid := domain.QuoteDraft{
		Title:    "Website refresh",
		Customer: "ACME",
		Currency: "EUR",
		Lines:    []domain.QuoteLine{{Description: "Design", Quantity: 1, UnitPrice: 1000}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}

	empty := domain.QuoteDraft{}
	err := empty.Validate()
	if err == nil {
		t.Fatal("expected an error for an empty draft")
	}
	for _, want := range []string{"title", "customer", "currency", "line"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}

	negative := valid
	negative.Lines = []domain.QuoteLine{{Description: "Refund", Quantity: -1, UnitPrice: 10}}
	if negative.Validate() == nil {
		t.Error("expected negative quantities to be rejected")
	}
}
