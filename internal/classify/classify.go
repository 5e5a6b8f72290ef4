// Package classify tags Deals and FinancingEvents with a market_tag and a
// sponsor-backed flag by matching keyword indicators against extraction
// evidence. It never creates or links records — it only annotates ones the
// Clusterer and Reconciler already produced.
package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

// Classification is the result of classifying one deal or financing event.
type Classification struct {
	MarketTag        models.MarketTag
	InstrumentFamily string
	InstrumentType   string
	IsSponsorBacked  bool
	Confidence       float64
	Signals          map[string]bool
}

var (
	igIndicators = compileAll(
		`\binvestment\s+grade\b`, `\bIG\b`, `\bBBB[\-\+]?\b`, `\bA[\-\+]?\b`, `\bAA[\-\+]?\b`, `\bAAA\b`,
	)
	hyIndicators = compileAll(
		`\bhigh\s+yield\b`, `\bHY\b`, `\bleveraged\b`, `\blevfin\b`, `\bBB[\-\+]?\b`, `\bB[\-\+]?\b`,
		`\bCCC[\-\+]?\b`, `\bjunk\b`, `\bsub[\-\s]?investment\s+grade\b`,
	)
	tlbIndicators = compileAll(
		`\bterm\s+loan\s+b\b`, `\bTLB\b`, `\bTL\s*B\b`, `\binstitutional\s+term\s+loan\b`, `\bterm\s+b\b`,
	)
	bridgeIndicators = compileAll(
		`\bbridge\b`, `\binterim\s+financing\b`, `\btemporary\s+financing\b`,
	)
	rcfIndicators = compileAll(
		`\brevolving\b`, `\bRCF\b`, `\brevolver\b`, `\bABL\b`, `\basset[\-\s]based\s+(?:lending|loan)\b`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Classifier annotates Deals and FinancingEvents through a Store.
type Classifier struct {
	Store store.Store
}

func New(s store.Store) *Classifier {
	return &Classifier{Store: s}
}

// ClassifyFinancingEvent determines an event's market_tag from its source
// facts' evidence text, then folds in the owning deal's sponsor status.
func (c *Classifier) ClassifyFinancingEvent(ctx context.Context, ev *models.FinancingEvent) (Classification, error) {
	evidence, err := c.evidenceForEvent(ctx, ev)
	if err != nil {
		return Classification{}, err
	}
	evidenceLower := strings.ToLower(evidence)

	signals := map[string]bool{}
	isIG := anyMatch(igIndicators, evidenceLower)
	isHY := anyMatch(hyIndicators, evidenceLower)
	isTLB := anyMatch(tlbIndicators, evidenceLower)
	isBridge := anyMatch(bridgeIndicators, evidenceLower)
	isRCF := anyMatch(rcfIndicators, evidenceLower)
	if isIG {
		signals["ig_indicator"] = true
	}
	if isHY {
		signals["hy_indicator"] = true
	}
	if isTLB {
		signals["tlb_indicator"] = true
	}
	if isBridge {
		signals["bridge_indicator"] = true
	}
	if isRCF {
		signals["rcf_indicator"] = true
	}

	instrumentFamily := ev.InstrumentFamily
	if instrumentFamily == "" {
		instrumentFamily = "unknown"
	}
	instrumentType := ev.InstrumentType

	var sponsorBacked bool
	var deal *models.Deal
	if ev.DealID != 0 {
		var err error
		deal, err = c.Store.GetDeal(ctx, ev.DealID)
		if err != nil && err != store.ErrNotFound {
			return Classification{}, fmt.Errorf("classify: fetch deal for event: %w", err)
		}
		if deal != nil && deal.IsSponsorBacked != nil {
			sponsorBacked = *deal.IsSponsorBacked
		}
	}

	var marketTag models.MarketTag
	switch {
	case isBridge:
		marketTag = models.MarketTagBridge
		instrumentType = "bridge"
	case isTLB:
		marketTag = models.MarketTagTermLoanB
		instrumentType = "term_loan_b"
		instrumentFamily = "loan"
	case isRCF:
		marketTag = models.MarketTagOtherLoan
		instrumentType = "rcf"
		instrumentFamily = "loan"
	case instrumentFamily == "bond":
		switch {
		case isHY && !isIG:
			marketTag = models.MarketTagHYBond
		case isIG:
			marketTag = models.MarketTagIGBond
		case sponsorBacked:
			marketTag = models.MarketTagHYBond
		default:
			marketTag = models.MarketTagIGBond
		}
	case instrumentFamily == "loan":
		if isHY || isTLB {
			marketTag = models.MarketTagTermLoanB
			instrumentType = "term_loan_b"
		} else {
			marketTag = models.MarketTagOtherLoan
		}
	default:
		marketTag = models.MarketTagUnknown
	}

	ev.MarketTag = marketTag
	ev.InstrumentType = instrumentType
	ev.InstrumentFamily = instrumentFamily
	if err := c.Store.UpdateFinancingEvent(ctx, ev); err != nil {
		return Classification{}, fmt.Errorf("classify: update financing event: %w", err)
	}

	confidence := 0.5
	if len(signals) > 0 {
		confidence = 0.8
	}

	return Classification{
		MarketTag:        marketTag,
		InstrumentFamily: instrumentFamily,
		InstrumentType:   instrumentType,
		IsSponsorBacked:  sponsorBacked,
		Confidence:       confidence,
		Signals:          signals,
	}, nil
}

func (c *Classifier) evidenceForEvent(ctx context.Context, ev *models.FinancingEvent) (string, error) {
	var snippets []string
	for _, id := range ev.SourceFactIDs {
		f, err := c.Store.GetFact(ctx, id)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("classify: fetch source fact %d: %w", id, err)
		}
		snippets = append(snippets, f.EvidenceSnippet)
	}
	return strings.Join(snippets, " "), nil
}

// ClassifyDeal infers is_sponsor_backed from the deal's sponsor fields (or
// from its financing events' instrument signals when no sponsor fact
// landed) and sets market_tag from the priority order of its financing
// events' tags.
func (c *Classifier) ClassifyDeal(ctx context.Context, deal *models.Deal) (Classification, error) {
	signals := map[string]bool{}

	sponsorBacked := deal.IsSponsorBacked
	if sponsorBacked == nil {
		if deal.SponsorNameNormalized != "" {
			yes := true
			sponsorBacked = &yes
		} else {
			events, err := c.Store.ListFinancingEventsByDeal(ctx, deal.ID)
			if err != nil {
				return Classification{}, fmt.Errorf("classify: list financing events: %w", err)
			}
			hasTLB := false
			for _, ev := range events {
				if strings.Contains(string(ev.MarketTag), "HY") {
					signals["hy_financing"] = true
				}
				if strings.Contains(strings.ToLower(ev.InstrumentType), "term_loan_b") {
					signals["tlb_financing"] = true
					hasTLB = true
				}
			}
			sponsorBacked = &hasTLB
		}
	}

	marketTag, err := c.determineMarketTag(ctx, deal.ID)
	if err != nil {
		return Classification{}, err
	}

	deal.IsSponsorBacked = sponsorBacked
	deal.MarketTag = marketTag
	if err := c.Store.UpdateDeal(ctx, deal); err != nil {
		return Classification{}, fmt.Errorf("classify: update deal: %w", err)
	}

	confidence := 0.5
	if len(signals) > 0 {
		confidence = 0.8
	}

	return Classification{
		MarketTag:        marketTag,
		InstrumentFamily: "mixed",
		InstrumentType:   "mixed",
		IsSponsorBacked:  *sponsorBacked,
		Confidence:       confidence,
		Signals:          signals,
	}, nil
}

// determineMarketTag picks the deal's primary market tag from its financing
// events by priority: Term_Loan_B > HY_Bond > Bridge > IG_Bond > first-seen.
func (c *Classifier) determineMarketTag(ctx context.Context, dealID int64) (models.MarketTag, error) {
	events, err := c.Store.ListFinancingEventsByDeal(ctx, dealID)
	if err != nil {
		return "", fmt.Errorf("classify: list financing events for market tag: %w", err)
	}
	if len(events) == 0 {
		return models.MarketTagUnknown, nil
	}

	var tags []models.MarketTag
	for _, ev := range events {
		if ev.MarketTag != "" {
			tags = append(tags, ev.MarketTag)
		}
	}

	priority := []models.MarketTag{
		models.MarketTagTermLoanB, models.MarketTagHYBond, models.MarketTagBridge, models.MarketTagIGBond,
	}
	for _, want := range priority {
		for _, t := range tags {
			if t == want {
				return want, nil
			}
		}
	}
	if len(tags) > 0 {
		return tags[0], nil
	}
	return models.MarketTagUnknown, nil
}

// ClassifyAllUnclassified runs ClassifyFinancingEvent over every event with
// an empty market_tag, then ClassifyDeal over every deal still carrying the
// Unknown sentinel — financing events use the zero value as "unclassified"
// since Reconciler never sets one; deals use MarketTagUnknown since the
// Clusterer sets it explicitly at creation. Events are classified first so
// a deal's market tag aggregation sees freshly-tagged events.
func (c *Classifier) ClassifyAllUnclassified(ctx context.Context) (eventsClassified, dealsClassified int, err error) {
	events, err := c.Store.ListAllFinancingEvents(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("classify: list all financing events: %w", err)
	}
	for _, ev := range events {
		if ev.MarketTag != "" {
			continue
		}
		if _, err := c.ClassifyFinancingEvent(ctx, ev); err != nil {
			return eventsClassified, dealsClassified, err
		}
		eventsClassified++
	}

	deals, err := c.Store.ListDealsByState(ctx,
		models.DealStateCandidate, models.DealStateOpen, models.DealStateClosed,
		models.DealStateLocked, models.DealStateNeedsReview)
	if err != nil {
		return eventsClassified, dealsClassified, fmt.Errorf("classify: list all deals: %w", err)
	}
	for _, d := range deals {
		if d.MarketTag != models.MarketTagUnknown {
			continue
		}
		if _, err := c.ClassifyDeal(ctx, d); err != nil {
			return eventsClassified, dealsClassified, err
		}
		dealsClassified++
	}

	return eventsClassified, dealsClassified, nil
}
