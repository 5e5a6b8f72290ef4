package bank

import (
	"context"
	"testing"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

func TestNormalizeStripsOneTrailingSuffix(t *testing.T) {
	cases := map[string]string{
		"Example Bank, N.A.":   "example bank",
		"Acme Capital, LLC":    "acme capital",
		"Global Partners Inc.": "global partners",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveExactNameMatch(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	b := &models.Bank{DisplayName: "Goldman Sachs", NormalizedName: Normalize("Goldman Sachs")}
	if err := a.CreateBank(ctx, b); err != nil {
		t.Fatalf("create bank: %v", err)
	}

	r := New(a, DefaultFuzzyThreshold)
	match, err := r.Resolve(ctx, "Goldman Sachs")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if match == nil || match.MatchType != MatchExact || match.Confidence != 1.0 {
		t.Fatalf("expected exact match with confidence 1.0, got %+v", match)
	}
}

func TestResolveAliasMatch(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	b := &models.Bank{DisplayName: "JPMorgan Chase & Co.", NormalizedName: Normalize("JPMorgan Chase & Co."), Aliases: []string{"JPMorgan", "Chase"}}
	if err := a.CreateBank(ctx, b); err != nil {
		t.Fatalf("create bank: %v", err)
	}

	r := New(a, DefaultFuzzyThreshold)
	match, err := r.Resolve(ctx, "Chase")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if match == nil || match.MatchType != MatchAlias || match.Confidence != 0.95 {
		t.Fatalf("expected alias match with confidence 0.95, got %+v", match)
	}
}

func TestResolveFuzzyMatchAboveThreshold(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	b := &models.Bank{DisplayName: "Morgan Stanley", NormalizedName: Normalize("Morgan Stanley")}
	if err := a.CreateBank(ctx, b); err != nil {
		t.Fatalf("create bank: %v", err)
	}

	r := New(a, 80)
	match, err := r.Resolve(ctx, "Morgan Stanly")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if match == nil || match.MatchType != MatchFuzzy {
		t.Fatalf("expected a fuzzy match for a one-letter typo, got %+v", match)
	}
}

func TestResolveReturnsNilBelowThreshold(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	b := &models.Bank{DisplayName: "Morgan Stanley", NormalizedName: Normalize("Morgan Stanley")}
	a.CreateBank(ctx, b)

	r := New(a, DefaultFuzzyThreshold)
	match, err := r.Resolve(ctx, "A Totally Unrelated Firm")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match for an unrelated name, got %+v", match)
	}
}

func TestResolveAndLinkAutoCreatesWhenRequested(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	r := New(a, DefaultFuzzyThreshold)
	id, name, err := r.ResolveAndLink(ctx, "Brand New Boutique Advisors", true)
	if err != nil {
		t.Fatalf("resolve and link: %v", err)
	}
	if id == nil {
		t.Fatal("expected auto_create to produce a bank id")
	}
	if name != "Brand New Boutique Advisors" {
		t.Errorf("unexpected display name %q", name)
	}

	banks, _ := a.ListBanks(ctx)
	if len(banks) != 1 {
		t.Fatalf("expected 1 bank after auto-create, got %d", len(banks))
	}
}

func TestResolveAndLinkWithoutAutoCreateReturnsNilID(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	r := New(a, DefaultFuzzyThreshold)
	id, _, err := r.ResolveAndLink(ctx, "Nobody Has Heard Of This Firm", false)
	if err != nil {
		t.Fatalf("resolve and link: %v", err)
	}
	if id != nil {
		t.Error("expected nil bank id when auto_create is false and nothing matched")
	}
}

func TestSeedBanksSkipsExisting(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	existing := &models.Bank{DisplayName: "Goldman Sachs", NormalizedName: Normalize("Goldman Sachs")}
	a.CreateBank(ctx, existing)

	if err := SeedBanks(ctx, a); err != nil {
		t.Fatalf("seed banks: %v", err)
	}

	banks, err := a.ListBanks(ctx)
	if err != nil {
		t.Fatalf("list banks: %v", err)
	}

	count := 0
	for _, b := range banks {
		if b.DisplayName == "Goldman Sachs" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected Goldman Sachs to appear exactly once after seeding, got %d", count)
	}
	if len(banks) != len(seedBanks) {
		t.Errorf("expected %d total banks after seed, got %d", len(seedBanks), len(banks))
	}
}
