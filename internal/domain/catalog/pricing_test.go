package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestCost(t *testing.T) {
	tests := []struct {
		price, coef, want string
	}{
		{"1000.00", "1.20", "1200.00"},
		{"999.99", "1.00", "999.99"},
		{"333.33", "1.15", "383.33"},
		{"100.00", "1.125", "112.50"},
	}
	for _, tt := range tests {
		got := Cost(decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.coef))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Cost(%s, %s) = %s, want %s", tt.price, tt.coef, got, tt.want)
		}
	}
}

func TestPricer_Quote(t *testing.T) {
	repo := newMockCoefficientRepo()
	repo.coefs[CategoryHighest] = &CategoryCoefficient{Category: CategoryHighest, Coefficient: decimal.RequireFromString("1.20")}
	p := NewPricer(repo, zerolog.Nop())

	doc := &Doctor{Category: CategoryHighest}
	svc := &Service{Price: decimal.RequireFromString("1000.00")}
	cost, err := p.Quote(context.Background(), doc, svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost.StringFixed(2) != "1200.00" {
		t.Errorf("expected 1200.00, got %s", cost.StringFixed(2))
	}
}

func TestPricer_MissingCoefficientWarnsAndDefaults(t *testing.T) {
	var buf bytes.Buffer
	p := NewPricer(newMockCoefficientRepo(), zerolog.New(&buf))

	cost, err := p.Quote(context.Background(), &Doctor{Category: CategoryFirst}, &Service{Price: decimal.RequireFromString("750.00")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cost.Equal(decimal.RequireFromString("750.00")) {
		t.Errorf("expected base price, got %s", cost)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"category":"first"`) {
		t.Errorf("expected warning log, got %q", out)
	}
}

func TestPricer_EmptyCategoryUsesNone(t *testing.T) {
	repo := newMockCoefficientRepo()
	repo.coefs[CategoryNone] = &CategoryCoefficient{Category: CategoryNone, Coefficient: decimal.RequireFromString("0.90")}
	p := NewPricer(repo, zerolog.Nop())

	coef, err := p.Coefficient(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !coef.Equal(decimal.RequireFromString("0.90")) {
		t.Errorf("expected 0.90, got %s", coef)
	}
}

func TestPricer_SourceError(t *testing.T) {
	repo := newMockCoefficientRepo()
	repo.err = errors.New("connection refused")
	p := NewPricer(repo, zerolog.Nop())

	if _, err := p.Coefficient(context.Background(), CategoryFirst); err == nil {
		t.Fatal("expected source error to propagate")
	}
}
