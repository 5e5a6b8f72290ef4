package patterns

import "testing"

func TestSplitPartyList(t *testing.T) {
	got := SplitPartyList("A Inc., B (a Delaware corporation), and C LLC")
	if len(got) != 3 {
		t.Fatalf("expected 3 parties, got %d: %v", len(got), got)
	}
}

func TestNormalizeParty(t *testing.T) {
	cases := map[string]string{
		"Target Company, Inc.":               "target company",
		"Alpha Holdings, Inc.":                "alpha holdings",
		"Widgets, Corp.":                     "widgets",
		"Acme Corp Holdings":                  "acme corp holdings",
		"Target Private Company, LLC":         "target private company",
	}
	for in, want := range cases {
		if got := NormalizeParty(in); got != want {
			t.Errorf("NormalizeParty(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchSponsorsNegation(t *testing.T) {
	text := "The Company confirmed it is not a financial sponsor transaction, and funds managed by Example Capital are not involved."
	matches := MatchSponsors(text)
	for _, m := range matches {
		if !m.IsNegated {
			t.Errorf("expected match %q to be negated", m.RawName)
		}
	}
}

func TestMatchSponsorsSeedList(t *testing.T) {
	text := "The Company is to be acquired by affiliates of Blackstone Inc. in a transaction backed by funds managed by Blackstone."
	matches := MatchSponsors(text)
	if len(matches) == 0 {
		t.Fatal("expected at least one sponsor match")
	}
	found := false
	for _, m := range matches {
		if m.Normalized == "blackstone" && m.Confidence == 0.95 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a seed-list blackstone match at confidence 0.95, got %+v", matches)
	}
}

func TestMatchCurrencyAmounts(t *testing.T) {
	got := MatchCurrencyAmounts("The facility totals $1.5 billion in commitments.")
	if len(got) != 1 {
		t.Fatalf("expected 1 amount, got %d", len(got))
	}
	if got[0].AmountUSD != 1_500_000_000 {
		t.Errorf("got %v, want 1.5e9", got[0].AmountUSD)
	}
}

func TestMatchAgreementDateISOFallback(t *testing.T) {
	m, ok := MatchAgreementDate("Filed pursuant to the agreement dated 2024-01-15.")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.ISO != "2024-01-15" {
		t.Errorf("got %q", m.ISO)
	}
}

func TestMatchAgreementDateLongForm(t *testing.T) {
	m, ok := MatchAgreementDate(`This Agreement and Plan of Merger, dated as of January 15, 2024, is entered into by and among Alpha Holdings, Inc.`)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.ISO != "2024-01-15" {
		t.Errorf("got %q", m.ISO)
	}
}

func TestRoleForLabel(t *testing.T) {
	if role, ok := RoleForLabel("Company"); !ok || role != "target" {
		t.Errorf("got %q, %v", role, ok)
	}
	if _, ok := RoleForLabel("Escrow Agent"); ok {
		t.Errorf("expected unknown role label to be absent from table")
	}
}
