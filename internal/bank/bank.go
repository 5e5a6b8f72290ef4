// Package bank resolves raw extracted bank names to canonical Bank
// entities: exact name, exact alias, then fuzzy match against a
// configurable threshold.
package bank

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

// DefaultFuzzyThreshold matches the attribution config's
// thresholds.fuzzy_bank_match_min default.
const DefaultFuzzyThreshold = 92.0

// MatchType records which resolution step produced a Match.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchAlias  MatchType = "alias"
	MatchFuzzy  MatchType = "fuzzy"
)

// Match is the result of a successful resolution.
type Match struct {
	BankID     int64
	BankName   string
	Confidence float64
	MatchType  MatchType
}

// Resolver resolves raw bank names to canonical Bank entities, memoizing
// by normalized name. A plain map guarded by sync.RWMutex is deliberate
// here rather than ristretto: the key space is bounded by the number of
// distinct bank-name spellings a single run encounters, not an
// unboundedly growing working set, so an eviction policy buys nothing.
type Resolver struct {
	Store          store.Store
	FuzzyThreshold float64

	mu    sync.RWMutex
	cache map[string]*Match
}

func New(s store.Store, fuzzyThreshold float64) *Resolver {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	return &Resolver{Store: s, FuzzyThreshold: fuzzyThreshold, cache: make(map[string]*Match)}
}

// Resolve looks up a raw bank name through the cache, then exact
// canonical-name match, then exact alias match, then fuzzy match. It
// returns (nil, nil) when nothing clears the fuzzy threshold.
func (r *Resolver) Resolve(ctx context.Context, bankNameRaw string) (*Match, error) {
	if bankNameRaw == "" {
		return nil, nil
	}
	normalized := Normalize(bankNameRaw)

	r.mu.RLock()
	if m, ok := r.cache[normalized]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	banks, err := r.Store.ListBanks(ctx)
	if err != nil {
		return nil, fmt.Errorf("bank: list banks: %w", err)
	}

	match := resolveAgainst(normalized, banks, r.FuzzyThreshold)

	r.mu.Lock()
	r.cache[normalized] = match
	r.mu.Unlock()

	return match, nil
}

func resolveAgainst(normalized string, banks []*models.Bank, fuzzyThreshold float64) *Match {
	for _, b := range banks {
		if b.NormalizedName == normalized {
			return &Match{BankID: b.ID, BankName: b.DisplayName, Confidence: 1.0, MatchType: MatchExact}
		}
	}

	for _, b := range banks {
		for _, alias := range b.Aliases {
			if Normalize(alias) == normalized {
				return &Match{BankID: b.ID, BankName: b.DisplayName, Confidence: 0.95, MatchType: MatchAlias}
			}
		}
	}

	var best *Match
	var bestScore float64
	for _, b := range banks {
		if score := ratio(normalized, b.NormalizedName); score > bestScore {
			bestScore, best = score, &Match{BankID: b.ID, BankName: b.DisplayName, Confidence: score, MatchType: MatchFuzzy}
		}
		for _, alias := range b.Aliases {
			if score := ratio(normalized, Normalize(alias)); score > bestScore {
				bestScore, best = score, &Match{BankID: b.ID, BankName: b.DisplayName, Confidence: score, MatchType: MatchFuzzy}
			}
		}
	}
	if best != nil && bestScore*100 >= fuzzyThreshold {
		return best
	}
	return nil
}

func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	r := 1 - float64(dist)/float64(maxLen)
	if r < 0 {
		return 0
	}
	return r
}

// ResolveAndLink resolves bankNameRaw and, when nothing matches and
// autoCreate is set, creates a new Bank entry for it. Returns a nil id and
// the normalized name when nothing matched and autoCreate is false.
func (r *Resolver) ResolveAndLink(ctx context.Context, bankNameRaw string, autoCreate bool) (*int64, string, error) {
	normalized := Normalize(bankNameRaw)

	match, err := r.Resolve(ctx, bankNameRaw)
	if err != nil {
		return nil, "", err
	}
	if match != nil {
		return &match.BankID, match.BankName, nil
	}

	if autoCreate {
		b := &models.Bank{DisplayName: bankNameRaw, NormalizedName: normalized}
		if err := r.Store.CreateBank(ctx, b); err != nil {
			return nil, "", fmt.Errorf("bank: auto-create: %w", err)
		}
		return &b.ID, b.DisplayName, nil
	}

	return nil, normalized, nil
}

var bankSuffixes = []string{
	", n.a.", " n.a.", ", na", " na",
	", inc.", " inc.", ", inc", " inc",
	", llc", " llc", ", ltd", " ltd",
	" plc", " ag", " sa", " nv", " bv",
	" securities", " capital", " bank",
	"& co.", "& co", " & company",
}

// Normalize lowercases, trims, strips one trailing corporate/business
// suffix (longest-first, so ", n.a." is stripped before a looser
// substring would clip " na" out of the middle of a name), and collapses
// whitespace.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range bankSuffixes {
		if strings.HasSuffix(n, suffix) {
			n = strings.TrimSuffix(n, suffix)
			break
		}
	}
	return strings.Join(strings.Fields(n), " ")
}

// seedBank is one entry in the seed list: canonical display name, known
// aliases, and bulge-bracket status.
type seedBank struct {
	name       string
	aliases    []string
	bulgeBracket bool
}

var seedBanks = []seedBank{
	{"JPMorgan Chase & Co.", []string{"JPMorgan", "J.P. Morgan", "JP Morgan", "JPMC", "Chase"}, true},
	{"Goldman Sachs", []string{"GS", "Goldman"}, true},
	{"Morgan Stanley", []string{"MS"}, true},
	{"Bank of America", []string{"BofA", "BAML", "Bank of America Merrill Lynch", "Merrill Lynch"}, true},
	{"Citigroup", []string{"Citi", "Citibank"}, true},
	{"Barclays", []string{"BARC"}, true},
	{"Deutsche Bank", []string{"DB"}, true},
	{"UBS", []string{"UBS AG"}, true},
	{"Credit Suisse", []string{"CS"}, true},
	{"Wells Fargo", []string{"WFC", "Wells"}, false},
	{"PNC Financial", []string{"PNC", "PNC Bank"}, false},
	{"U.S. Bank", []string{"USB", "US Bank", "US Bancorp"}, false},
	{"Truist", []string{"Truist Financial", "BB&T", "SunTrust"}, false},
	{"HSBC", []string{"HSBC Holdings"}, false},
	{"BNP Paribas", []string{"BNP"}, false},
	{"Societe Generale", []string{"SocGen"}, false},
	{"RBC Capital Markets", []string{"RBC", "Royal Bank of Canada"}, false},
	{"TD Securities", []string{"TD", "Toronto-Dominion"}, false},
	{"Mizuho", []string{"Mizuho Financial", "Mizuho Bank"}, false},
	{"MUFG", []string{"Mitsubishi UFJ", "Bank of Tokyo-Mitsubishi"}, false},
	{"SMBC", []string{"Sumitomo Mitsui", "SMBC Nikko"}, false},
	{"Lazard", nil, false},
	{"Evercore", nil, false},
	{"Centerview Partners", []string{"Centerview"}, false},
	{"Moelis & Company", []string{"Moelis"}, false},
	{"PJT Partners", []string{"PJT"}, false},
	{"Perella Weinberg", []string{"PWP"}, false},
	{"Guggenheim Securities", []string{"Guggenheim Partners"}, false},
	{"Jefferies", []string{"Jefferies Financial", "Jefferies Group"}, false},
	{"Piper Sandler", []string{"Piper Jaffray"}, false},
	{"Raymond James", nil, false},
}

// SeedBanks populates s with the common investment-bank roster, skipping
// any bank whose canonical name is already present. Aliases are stored
// verbatim (raw spelling); normalization happens at resolution time.
func SeedBanks(ctx context.Context, s store.Store) error {
	existing, err := s.ListBanks(ctx)
	if err != nil {
		return fmt.Errorf("bank: seed: list existing banks: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, b := range existing {
		have[b.DisplayName] = true
	}

	for _, seed := range seedBanks {
		if have[seed.name] {
			continue
		}
		b := &models.Bank{
			DisplayName:    seed.name,
			NormalizedName: Normalize(seed.name),
			IsBulgeBracket: seed.bulgeBracket,
			Aliases:        seed.aliases,
		}
		if err := s.CreateBank(ctx, b); err != nil {
			return fmt.Errorf("bank: seed: create %q: %w", seed.name, err)
		}
	}
	return nil
}
