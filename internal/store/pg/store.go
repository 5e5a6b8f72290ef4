// Package pg is the production Store implementation, backed by Postgres via
// pgx/v4. See schema.sql for the DDL; PGStore is a thin parameterized-SQL
// layer, not an ORM — every method maps directly onto one or two statements.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

// dealKeyLockTTL bounds how long a single deal-key-creation critical
// section may hold the distributed lock before redsync lets another
// process instance steal it, so a crashed holder can't wedge the key
// forever.
const dealKeyLockTTL = 10 * time.Second

type PGStore struct {
	pool        *pgxpool.Pool
	redisClient *goredislib.Client
	locker      *redsync.Redsync
}

// New connects to Postgres using connString (a standard libpq URL) and
// returns a ready PGStore. Callers should defer Close. redisURL is optional:
// when non-empty, CreateDeal additionally serializes deal_key creation
// across process instances with a redsync-backed distributed lock; when
// empty, CreateDeal relies solely on the Postgres unique-constraint race.
func New(ctx context.Context, connString, redisURL string) (*PGStore, error) {
	pool, err := pgxpool.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}

	s := &PGStore{pool: pool}
	if redisURL != "" {
		opt, err := goredislib.ParseURL(redisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("pg: parse redis url: %w", err)
		}
		s.redisClient = goredislib.NewClient(opt)
		s.locker = redsync.New(redsyncredis.NewPool(s.redisClient))
	}
	return s, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
	if s.redisClient != nil {
		s.redisClient.Close()
	}
}

var _ store.Store = (*PGStore)(nil)

// ---- Filings & Exhibits ----

func (s *PGStore) CreateFiling(ctx context.Context, f *models.Filing) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO filings (accession_number, cik, company_name, form_type, filing_date, raw_markup, normalized_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		f.AccessionNumber, f.CIK, f.CompanyName, f.FormType, f.FilingDate, f.RawMarkup, f.NormalizedText,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: create filing: %w", err)
	}
	return nil
}

func (s *PGStore) scanFiling(row pgx.Row) (*models.Filing, error) {
	f := &models.Filing{}
	err := row.Scan(&f.ID, &f.AccessionNumber, &f.CIK, &f.CompanyName, &f.FormType, &f.FilingDate,
		&f.RawMarkup, &f.NormalizedText, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan filing: %w", err)
	}
	return f, nil
}

const filingCols = `id, accession_number, cik, company_name, form_type, filing_date, raw_markup, normalized_text, created_at, updated_at`

func (s *PGStore) GetFiling(ctx context.Context, id int64) (*models.Filing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+filingCols+` FROM filings WHERE id = $1`, id)
	f, err := s.scanFiling(row)
	if err != nil {
		return nil, err
	}
	exhibits, err := s.exhibitsByFiling(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Exhibits = exhibits
	return f, nil
}

func (s *PGStore) FilingByAccession(ctx context.Context, accession string) (*models.Filing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+filingCols+` FROM filings WHERE accession_number = $1`, accession)
	return s.scanFiling(row)
}

func (s *PGStore) CreateExhibit(ctx context.Context, e *models.Exhibit) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO exhibits (filing_id, type, description, is_material, quality, raw_content, normalized_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		e.FilingID, e.Type, e.Description, e.IsMaterial, e.Quality, e.RawContent, e.NormalizedText,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: create exhibit: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateExhibit(ctx context.Context, e *models.Exhibit) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE exhibits SET type = $2, description = $3, is_material = $4, quality = $5,
			raw_content = $6, normalized_text = $7, updated_at = now()
		WHERE id = $1`,
		e.ID, e.Type, e.Description, e.IsMaterial, e.Quality, e.RawContent, e.NormalizedText,
	)
	if err != nil {
		return fmt.Errorf("pg: update exhibit: %w", err)
	}
	return nil
}

func (s *PGStore) exhibitsByFiling(ctx context.Context, filingID int64) ([]*models.Exhibit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filing_id, type, description, is_material, quality, raw_content, normalized_text, created_at, updated_at
		FROM exhibits WHERE filing_id = $1 ORDER BY id`, filingID)
	if err != nil {
		return nil, fmt.Errorf("pg: list exhibits: %w", err)
	}
	defer rows.Close()

	var out []*models.Exhibit
	for rows.Next() {
		e := &models.Exhibit{}
		if err := rows.Scan(&e.ID, &e.FilingID, &e.Type, &e.Description, &e.IsMaterial, &e.Quality,
			&e.RawContent, &e.NormalizedText, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan exhibit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Facts ----

const factCols = `id, fact_type, filing_id, exhibit_id, deal_id, evidence_snippet, evidence_start, evidence_end,
	source_section, extraction_method, extraction_pattern, confidence, payload, created_at, updated_at`

func (s *PGStore) CreateFact(ctx context.Context, f *models.AtomicFact) error {
	payload, err := marshalPayload(f)
	if err != nil {
		return fmt.Errorf("pg: marshal fact payload: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO atomic_facts (fact_type, filing_id, exhibit_id, deal_id, evidence_snippet, evidence_start,
			evidence_end, source_section, extraction_method, extraction_pattern, confidence, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		f.FactType, f.FilingID, f.ExhibitID, f.DealID, f.EvidenceSnippet, f.EvidenceStartOffset, f.EvidenceEndOffset,
		f.SourceSection, f.ExtractionMethod, f.ExtractionPattern, f.Confidence, payload,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: create fact: %w", err)
	}
	return nil
}

func (s *PGStore) scanFact(row pgx.Row) (*models.AtomicFact, error) {
	f := &models.AtomicFact{}
	var payloadRaw []byte
	err := row.Scan(&f.ID, &f.FactType, &f.FilingID, &f.ExhibitID, &f.DealID, &f.EvidenceSnippet,
		&f.EvidenceStartOffset, &f.EvidenceEndOffset, &f.SourceSection, &f.ExtractionMethod,
		&f.ExtractionPattern, &f.Confidence, &payloadRaw, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan fact: %w", err)
	}
	f.Payload, err = unmarshalPayload(f.FactType, payloadRaw)
	if err != nil {
		return nil, fmt.Errorf("pg: unmarshal fact payload: %w", err)
	}
	return f, nil
}

func (s *PGStore) scanFactRows(rows pgx.Rows) ([]*models.AtomicFact, error) {
	defer rows.Close()
	var out []*models.AtomicFact
	for rows.Next() {
		f := &models.AtomicFact{}
		var payloadRaw []byte
		if err := rows.Scan(&f.ID, &f.FactType, &f.FilingID, &f.ExhibitID, &f.DealID, &f.EvidenceSnippet,
			&f.EvidenceStartOffset, &f.EvidenceEndOffset, &f.SourceSection, &f.ExtractionMethod,
			&f.ExtractionPattern, &f.Confidence, &payloadRaw, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan fact row: %w", err)
		}
		payload, err := unmarshalPayload(f.FactType, payloadRaw)
		if err != nil {
			return nil, fmt.Errorf("pg: unmarshal fact row payload: %w", err)
		}
		f.Payload = payload
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PGStore) GetFact(ctx context.Context, id int64) (*models.AtomicFact, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+factCols+` FROM atomic_facts WHERE id = $1`, id)
	return s.scanFact(row)
}

func (s *PGStore) FactsByEvidencePrefix(ctx context.Context, exhibitID int64, pattern, prefix string) ([]*models.AtomicFact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+factCols+` FROM atomic_facts
		WHERE exhibit_id = $1 AND extraction_pattern = $2 AND left(evidence_snippet, length($3::text)) = $3`,
		exhibitID, pattern, prefix)
	if err != nil {
		return nil, fmt.Errorf("pg: facts by evidence prefix: %w", err)
	}
	return s.scanFactRows(rows)
}

func (s *PGStore) FactsByDeal(ctx context.Context, dealID int64) ([]*models.AtomicFact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+factCols+` FROM atomic_facts WHERE deal_id = $1 ORDER BY id`, dealID)
	if err != nil {
		return nil, fmt.Errorf("pg: facts by deal: %w", err)
	}
	return s.scanFactRows(rows)
}

func (s *PGStore) UnclusteredFactsByType(ctx context.Context, types ...models.FactType) ([]*models.AtomicFact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+factCols+` FROM atomic_facts
		WHERE deal_id IS NULL AND fact_type = ANY($1) ORDER BY id`, types)
	if err != nil {
		return nil, fmt.Errorf("pg: unclustered facts: %w", err)
	}
	return s.scanFactRows(rows)
}

func (s *PGStore) LinkedFactsByType(ctx context.Context, types ...models.FactType) ([]*models.AtomicFact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+factCols+` FROM atomic_facts
		WHERE deal_id IS NOT NULL AND fact_type = ANY($1) ORDER BY id`, types)
	if err != nil {
		return nil, fmt.Errorf("pg: linked facts: %w", err)
	}
	return s.scanFactRows(rows)
}

func (s *PGStore) RelatedPartyFacts(ctx context.Context, f *models.AtomicFact, excludeID int64) ([]*models.AtomicFact, error) {
	var rows pgx.Rows
	var err error
	if f.ExhibitID != 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT `+factCols+` FROM atomic_facts
			WHERE exhibit_id = $1 AND id <> $2 AND fact_type IN ($3, $4) ORDER BY id`,
			f.ExhibitID, excludeID, models.FactTypePartyDefinition, models.FactTypePartyMention)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+factCols+` FROM atomic_facts
			WHERE filing_id = $1 AND id <> $2 AND fact_type IN ($3, $4) ORDER BY id`,
			f.FilingID, excludeID, models.FactTypePartyDefinition, models.FactTypePartyMention)
	}
	if err != nil {
		return nil, fmt.Errorf("pg: related party facts: %w", err)
	}
	return s.scanFactRows(rows)
}

func (s *PGStore) AssignFactDeal(ctx context.Context, factID, dealID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE atomic_facts SET deal_id = $2, updated_at = now() WHERE id = $1 AND deal_id IS NULL`, factID, dealID)
	if err != nil {
		return false, fmt.Errorf("pg: assign fact deal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) DealIDForLocality(ctx context.Context, f *models.AtomicFact) (int64, bool, error) {
	var dealID int64
	var row pgx.Row
	if f.ExhibitID != 0 {
		row = s.pool.QueryRow(ctx, `
			SELECT deal_id FROM atomic_facts
			WHERE exhibit_id = $1 AND deal_id IS NOT NULL AND fact_type IN ($2, $3)
			ORDER BY id LIMIT 1`, f.ExhibitID, models.FactTypePartyDefinition, models.FactTypePartyMention)
	} else {
		row = s.pool.QueryRow(ctx, `
			SELECT deal_id FROM atomic_facts
			WHERE filing_id = $1 AND deal_id IS NOT NULL AND fact_type IN ($2, $3)
			ORDER BY id LIMIT 1`, f.FilingID, models.FactTypePartyDefinition, models.FactTypePartyMention)
	}
	err := row.Scan(&dealID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pg: deal id for locality: %w", err)
	}
	return dealID, true, nil
}

func (s *PGStore) MoveFactsToDeal(ctx context.Context, sourceDealID, targetDealID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE atomic_facts SET deal_id = $2, updated_at = now() WHERE deal_id = $1`, sourceDealID, targetDealID)
	if err != nil {
		return fmt.Errorf("pg: move facts to deal: %w", err)
	}
	return nil
}

// ---- Deals ----

const dealCols = `id, state, acquirer_cik, acquirer_name_raw, acquirer_name_display, acquirer_name_normalized,
	target_cik, target_name_raw, target_name_display, target_name_normalized, deal_key,
	announcement_date, agreement_date, expected_close, actual_close, deal_value_usd, deal_value_evidence,
	is_sponsor_backed, sponsor_name_raw, sponsor_name_normalized, sponsor_confidence, sponsor_evidence,
	sponsor_entity_id, unresolved_sponsor_entity, market_tag, is_cross_border,
	advisory_fee_estimated_usd, underwriting_fee_estimated_usd, created_at, updated_at`

func (s *PGStore) CreateDeal(ctx context.Context, d *models.Deal) error {
	if s.locker != nil {
		mutex := s.locker.NewMutex("dealkey:"+d.DealKey, redsync.WithExpiry(dealKeyLockTTL))
		if err := mutex.LockContext(ctx); err != nil {
			return fmt.Errorf("pg: acquire deal_key lock: %w", err)
		}
		defer mutex.UnlockContext(ctx)
	}

	sponsorEvidence, err := marshalSponsorEvidence(d.SponsorEvidence)
	if err != nil {
		return fmt.Errorf("pg: marshal sponsor evidence: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO deals (state, acquirer_cik, acquirer_name_raw, acquirer_name_display, acquirer_name_normalized,
			target_cik, target_name_raw, target_name_display, target_name_normalized, deal_key,
			announcement_date, agreement_date, expected_close, actual_close, deal_value_usd, deal_value_evidence,
			is_sponsor_backed, sponsor_name_raw, sponsor_name_normalized, sponsor_confidence, sponsor_evidence,
			sponsor_entity_id, unresolved_sponsor_entity, market_tag, is_cross_border,
			advisory_fee_estimated_usd, underwriting_fee_estimated_usd)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
		RETURNING id, created_at, updated_at`,
		d.State, d.AcquirerCIK, d.AcquirerNameRaw, d.AcquirerNameDisplay, d.AcquirerNameNormalized,
		d.TargetCIK, d.TargetNameRaw, d.TargetNameDisplay, d.TargetNameNormalized, d.DealKey,
		d.AnnouncementDate, d.AgreementDate, d.ExpectedClose, d.ActualClose, d.DealValueUSD, d.DealValueEvidence,
		d.IsSponsorBacked, d.SponsorNameRaw, d.SponsorNameNormalized, d.SponsorConfidence, sponsorEvidence,
		d.SponsorEntityID, d.UnresolvedSponsorEntity, d.MarketTag, d.IsCrossBorder,
		d.AdvisoryFeeEstimatedUSD, d.UnderwritingFeeEstimatedUSD,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if isUniqueViolation(err) {
		return store.ErrDealKeyExists
	}
	if err != nil {
		return fmt.Errorf("pg: create deal: %w", err)
	}
	return nil
}

func (s *PGStore) scanDeal(row pgx.Row) (*models.Deal, error) {
	d := &models.Deal{}
	var sponsorEvidenceRaw []byte
	err := row.Scan(&d.ID, &d.State, &d.AcquirerCIK, &d.AcquirerNameRaw, &d.AcquirerNameDisplay, &d.AcquirerNameNormalized,
		&d.TargetCIK, &d.TargetNameRaw, &d.TargetNameDisplay, &d.TargetNameNormalized, &d.DealKey,
		&d.AnnouncementDate, &d.AgreementDate, &d.ExpectedClose, &d.ActualClose, &d.DealValueUSD, &d.DealValueEvidence,
		&d.IsSponsorBacked, &d.SponsorNameRaw, &d.SponsorNameNormalized, &d.SponsorConfidence, &sponsorEvidenceRaw,
		&d.SponsorEntityID, &d.UnresolvedSponsorEntity, &d.MarketTag, &d.IsCrossBorder,
		&d.AdvisoryFeeEstimatedUSD, &d.UnderwritingFeeEstimatedUSD, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan deal: %w", err)
	}
	d.SponsorEvidence, err = unmarshalSponsorEvidence(sponsorEvidenceRaw)
	if err != nil {
		return nil, fmt.Errorf("pg: unmarshal sponsor evidence: %w", err)
	}
	return d, nil
}

func (s *PGStore) GetDeal(ctx context.Context, id int64) (*models.Deal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+dealCols+` FROM deals WHERE id = $1`, id)
	return s.scanDeal(row)
}

func (s *PGStore) DealByKey(ctx context.Context, key string) (*models.Deal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+dealCols+` FROM deals WHERE deal_key = $1 AND state <> 'LOCKED'`, key)
	return s.scanDeal(row)
}

func (s *PGStore) UpdateDeal(ctx context.Context, d *models.Deal) error {
	sponsorEvidence, err := marshalSponsorEvidence(d.SponsorEvidence)
	if err != nil {
		return fmt.Errorf("pg: marshal sponsor evidence: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE deals SET state=$2, acquirer_cik=$3, acquirer_name_raw=$4, acquirer_name_display=$5,
			acquirer_name_normalized=$6, target_cik=$7, target_name_raw=$8, target_name_display=$9,
			target_name_normalized=$10, deal_key=$11, announcement_date=$12, agreement_date=$13,
			expected_close=$14, actual_close=$15, deal_value_usd=$16, deal_value_evidence=$17,
			is_sponsor_backed=$18, sponsor_name_raw=$19, sponsor_name_normalized=$20, sponsor_confidence=$21,
			sponsor_evidence=$22, sponsor_entity_id=$23, unresolved_sponsor_entity=$24, market_tag=$25,
			is_cross_border=$26, advisory_fee_estimated_usd=$27, underwriting_fee_estimated_usd=$28,
			updated_at = now()
		WHERE id = $1`,
		d.ID, d.State, d.AcquirerCIK, d.AcquirerNameRaw, d.AcquirerNameDisplay, d.AcquirerNameNormalized,
		d.TargetCIK, d.TargetNameRaw, d.TargetNameDisplay, d.TargetNameNormalized, d.DealKey,
		d.AnnouncementDate, d.AgreementDate, d.ExpectedClose, d.ActualClose, d.DealValueUSD, d.DealValueEvidence,
		d.IsSponsorBacked, d.SponsorNameRaw, d.SponsorNameNormalized, d.SponsorConfidence, sponsorEvidence,
		d.SponsorEntityID, d.UnresolvedSponsorEntity, d.MarketTag, d.IsCrossBorder,
		d.AdvisoryFeeEstimatedUSD, d.UnderwritingFeeEstimatedUSD,
	)
	if err != nil {
		return fmt.Errorf("pg: update deal: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteDeal(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete deal: %w", err)
	}
	return nil
}

func (s *PGStore) ListDealsByState(ctx context.Context, states ...models.DealState) ([]*models.Deal, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+dealCols+` FROM deals WHERE state = ANY($1) ORDER BY id`, states)
	if err != nil {
		return nil, fmt.Errorf("pg: list deals by state: %w", err)
	}
	defer rows.Close()
	return s.scanDealRows(rows)
}

func (s *PGStore) SearchDeals(ctx context.Context, query string, limit, offset int) ([]*models.Deal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+dealCols+` FROM deals
		WHERE target_name_display ILIKE '%' || $1 || '%' OR acquirer_name_display ILIKE '%' || $1 || '%'
		ORDER BY id LIMIT $2 OFFSET $3`, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pg: search deals: %w", err)
	}
	defer rows.Close()
	return s.scanDealRows(rows)
}

func (s *PGStore) scanDealRows(rows pgx.Rows) ([]*models.Deal, error) {
	var out []*models.Deal
	for rows.Next() {
		d := &models.Deal{}
		var sponsorEvidenceRaw []byte
		if err := rows.Scan(&d.ID, &d.State, &d.AcquirerCIK, &d.AcquirerNameRaw, &d.AcquirerNameDisplay, &d.AcquirerNameNormalized,
			&d.TargetCIK, &d.TargetNameRaw, &d.TargetNameDisplay, &d.TargetNameNormalized, &d.DealKey,
			&d.AnnouncementDate, &d.AgreementDate, &d.ExpectedClose, &d.ActualClose, &d.DealValueUSD, &d.DealValueEvidence,
			&d.IsSponsorBacked, &d.SponsorNameRaw, &d.SponsorNameNormalized, &d.SponsorConfidence, &sponsorEvidenceRaw,
			&d.SponsorEntityID, &d.UnresolvedSponsorEntity, &d.MarketTag, &d.IsCrossBorder,
			&d.AdvisoryFeeEstimatedUSD, &d.UnderwritingFeeEstimatedUSD, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan deal row: %w", err)
		}
		evidence, err := unmarshalSponsorEvidence(sponsorEvidenceRaw)
		if err != nil {
			return nil, fmt.Errorf("pg: unmarshal deal row sponsor evidence: %w", err)
		}
		d.SponsorEvidence = evidence
		out = append(out, d)
	}
	return out, rows.Err()
}

// ---- Financing events & participants ----

const financingCols = `id, deal_id, instrument_family, instrument_type, market_tag, amount_usd, amount_raw, currency,
	maturity_date, interest_rate, spread_bps, purpose, reconciliation_confidence, reconciliation_explanation,
	source_exhibit_id, source_fact_ids, estimated_fee_usd, created_at, updated_at`

func (s *PGStore) CreateFinancingEvent(ctx context.Context, ev *models.FinancingEvent) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO financing_events (deal_id, instrument_family, instrument_type, market_tag, amount_usd,
			amount_raw, currency, maturity_date, interest_rate, spread_bps, purpose, reconciliation_confidence,
			reconciliation_explanation, source_exhibit_id, source_fact_ids, estimated_fee_usd)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id, created_at, updated_at`,
		ev.DealID, ev.InstrumentFamily, ev.InstrumentType, ev.MarketTag, ev.AmountUSD, ev.AmountRaw, ev.Currency,
		ev.MaturityDate, ev.InterestRate, ev.SpreadBps, ev.Purpose, ev.ReconciliationConfidence,
		ev.ReconciliationExplanation, ev.SourceExhibitID, ev.SourceFactIDs, ev.EstimatedFeeUSD,
	).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: create financing event: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateFinancingEvent(ctx context.Context, ev *models.FinancingEvent) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE financing_events SET deal_id=$2, instrument_family=$3, instrument_type=$4, market_tag=$5,
			amount_usd=$6, amount_raw=$7, currency=$8, maturity_date=$9, interest_rate=$10, spread_bps=$11,
			purpose=$12, reconciliation_confidence=$13, reconciliation_explanation=$14, source_exhibit_id=$15,
			source_fact_ids=$16, estimated_fee_usd=$17, updated_at=now()
		WHERE id = $1`,
		ev.ID, ev.DealID, ev.InstrumentFamily, ev.InstrumentType, ev.MarketTag, ev.AmountUSD, ev.AmountRaw,
		ev.Currency, ev.MaturityDate, ev.InterestRate, ev.SpreadBps, ev.Purpose, ev.ReconciliationConfidence,
		ev.ReconciliationExplanation, ev.SourceExhibitID, ev.SourceFactIDs, ev.EstimatedFeeUSD,
	)
	if err != nil {
		return fmt.Errorf("pg: update financing event: %w", err)
	}
	return nil
}

func (s *PGStore) scanFinancingRows(ctx context.Context, rows pgx.Rows) ([]*models.FinancingEvent, error) {
	defer rows.Close()
	var out []*models.FinancingEvent
	for rows.Next() {
		ev := &models.FinancingEvent{}
		if err := rows.Scan(&ev.ID, &ev.DealID, &ev.InstrumentFamily, &ev.InstrumentType, &ev.MarketTag,
			&ev.AmountUSD, &ev.AmountRaw, &ev.Currency, &ev.MaturityDate, &ev.InterestRate, &ev.SpreadBps,
			&ev.Purpose, &ev.ReconciliationConfidence, &ev.ReconciliationExplanation, &ev.SourceExhibitID,
			&ev.SourceFactIDs, &ev.EstimatedFeeUSD, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan financing event row: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, ev := range out {
		participants, err := s.participantsByEvent(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		ev.Participants = participants
	}
	return out, nil
}

func (s *PGStore) ListFinancingEventsByDeal(ctx context.Context, dealID int64) ([]*models.FinancingEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+financingCols+` FROM financing_events WHERE deal_id = $1 ORDER BY id`, dealID)
	if err != nil {
		return nil, fmt.Errorf("pg: list financing events by deal: %w", err)
	}
	return s.scanFinancingRows(ctx, rows)
}

func (s *PGStore) ListAllFinancingEvents(ctx context.Context) ([]*models.FinancingEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+financingCols+` FROM financing_events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pg: list all financing events: %w", err)
	}
	return s.scanFinancingRows(ctx, rows)
}

func (s *PGStore) CreateParticipant(ctx context.Context, p *models.FinancingParticipant) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO financing_participants (financing_event_id, bank_id, bank_name_raw, bank_name_normalized,
			role, role_normalized, evidence_snippet, evidence_source, table_row, table_col, role_weight,
			estimated_fee_usd)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at`,
		p.FinancingEventID, p.BankID, p.BankNameRaw, p.BankNameNormalized, p.Role, p.RoleNormalized,
		p.EvidenceSnippet, p.EvidenceSource, p.TableRow, p.TableCol, p.RoleWeight, p.EstimatedFeeUSD,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: create participant: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateParticipant(ctx context.Context, p *models.FinancingParticipant) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE financing_participants SET bank_id=$2, bank_name_raw=$3, bank_name_normalized=$4, role=$5,
			role_normalized=$6, evidence_snippet=$7, evidence_source=$8, table_row=$9, table_col=$10,
			role_weight=$11, estimated_fee_usd=$12
		WHERE id = $1`,
		p.ID, p.BankID, p.BankNameRaw, p.BankNameNormalized, p.Role, p.RoleNormalized, p.EvidenceSnippet,
		p.EvidenceSource, p.TableRow, p.TableCol, p.RoleWeight, p.EstimatedFeeUSD,
	)
	if err != nil {
		return fmt.Errorf("pg: update participant: %w", err)
	}
	return nil
}

func (s *PGStore) participantsByEvent(ctx context.Context, eventID int64) ([]*models.FinancingParticipant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, financing_event_id, bank_id, bank_name_raw, bank_name_normalized, role, role_normalized,
			evidence_snippet, evidence_source, table_row, table_col, role_weight, estimated_fee_usd, created_at
		FROM financing_participants WHERE financing_event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("pg: list participants: %w", err)
	}
	defer rows.Close()
	var out []*models.FinancingParticipant
	for rows.Next() {
		p := &models.FinancingParticipant{}
		if err := rows.Scan(&p.ID, &p.FinancingEventID, &p.BankID, &p.BankNameRaw, &p.BankNameNormalized,
			&p.Role, &p.RoleNormalized, &p.EvidenceSnippet, &p.EvidenceSource, &p.TableRow, &p.TableCol,
			&p.RoleWeight, &p.EstimatedFeeUSD, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan participant row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) MoveFinancingEventsToDeal(ctx context.Context, sourceDealID, targetDealID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE financing_events SET deal_id = $2, updated_at = now() WHERE deal_id = $1`, sourceDealID, targetDealID)
	if err != nil {
		return fmt.Errorf("pg: move financing events to deal: %w", err)
	}
	return nil
}

func (s *PGStore) FinancingEventExistsForFacts(ctx context.Context, factIDs []int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM financing_events WHERE source_fact_ids && $1)`, factIDs).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pg: financing event exists for facts: %w", err)
	}
	return exists, nil
}

// ---- Banks ----

func (s *PGStore) CreateBank(ctx context.Context, b *models.Bank) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO banks (display_name, normalized_name, is_bulge_bracket) VALUES ($1, $2, $3) RETURNING id`,
		b.DisplayName, b.NormalizedName, b.IsBulgeBracket,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("pg: create bank: %w", err)
	}
	for _, alias := range b.Aliases {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO bank_aliases (bank_id, alias_raw, alias_normalized) VALUES ($1, $2, $3)`,
			b.ID, alias, alias); err != nil {
			return fmt.Errorf("pg: create bank alias: %w", err)
		}
	}
	return nil
}

func (s *PGStore) GetBank(ctx context.Context, id int64) (*models.Bank, error) {
	b := &models.Bank{}
	err := s.pool.QueryRow(ctx, `SELECT id, display_name, normalized_name, is_bulge_bracket FROM banks WHERE id = $1`, id).
		Scan(&b.ID, &b.DisplayName, &b.NormalizedName, &b.IsBulgeBracket)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get bank: %w", err)
	}
	b.Aliases, err = s.aliasesForBank(ctx, id)
	return b, err
}

func (s *PGStore) BankByNormalizedName(ctx context.Context, normalized string) (*models.Bank, error) {
	b := &models.Bank{}
	err := s.pool.QueryRow(ctx, `
		SELECT b.id, b.display_name, b.normalized_name, b.is_bulge_bracket FROM banks b
		WHERE b.normalized_name = $1
		UNION
		SELECT b.id, b.display_name, b.normalized_name, b.is_bulge_bracket FROM banks b
		JOIN bank_aliases a ON a.bank_id = b.id WHERE a.alias_normalized = $1
		LIMIT 1`, normalized,
	).Scan(&b.ID, &b.DisplayName, &b.NormalizedName, &b.IsBulgeBracket)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: bank by normalized name: %w", err)
	}
	b.Aliases, err = s.aliasesForBank(ctx, b.ID)
	return b, err
}

func (s *PGStore) aliasesForBank(ctx context.Context, bankID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT alias_raw FROM bank_aliases WHERE bank_id = $1 ORDER BY id`, bankID)
	if err != nil {
		return nil, fmt.Errorf("pg: aliases for bank: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return nil, err
		}
		out = append(out, alias)
	}
	return out, rows.Err()
}

func (s *PGStore) ListBanks(ctx context.Context) ([]*models.Bank, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, display_name, normalized_name, is_bulge_bracket FROM banks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pg: list banks: %w", err)
	}
	defer rows.Close()
	var out []*models.Bank
	for rows.Next() {
		b := &models.Bank{}
		if err := rows.Scan(&b.ID, &b.DisplayName, &b.NormalizedName, &b.IsBulgeBracket); err != nil {
			return nil, fmt.Errorf("pg: scan bank row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, b := range out {
		aliases, err := s.aliasesForBank(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.Aliases = aliases
	}
	return out, nil
}

// ---- Alerts ----

const alertCols = `id, type, filing_id, exhibit_id, deal_id, title, description, exhibit_link, fields_needed,
	preamble_hash, preamble_preview, is_resolved, resolved_at, resolved_by, resolution_notes, created_at, updated_at`

func (s *PGStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO alerts (type, filing_id, exhibit_id, deal_id, title, description, exhibit_link, fields_needed,
			preamble_hash, preamble_preview, is_resolved, resolved_at, resolved_by, resolution_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id, created_at, updated_at`,
		a.Type, a.FilingID, a.ExhibitID, a.DealID, a.Title, a.Description, a.ExhibitLink, a.FieldsNeeded,
		a.PreambleHash, a.PreamblePreview, a.IsResolved, a.ResolvedAt, a.ResolvedBy, a.ResolutionNotes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: create alert: %w", err)
	}
	return nil
}

func (s *PGStore) scanAlert(row pgx.Row) (*models.Alert, error) {
	a := &models.Alert{}
	err := row.Scan(&a.ID, &a.Type, &a.FilingID, &a.ExhibitID, &a.DealID, &a.Title, &a.Description, &a.ExhibitLink,
		&a.FieldsNeeded, &a.PreambleHash, &a.PreamblePreview, &a.IsResolved, &a.ResolvedAt, &a.ResolvedBy,
		&a.ResolutionNotes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan alert: %w", err)
	}
	return a, nil
}

func (s *PGStore) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = $1`, id)
	return s.scanAlert(row)
}

func (s *PGStore) ResolveAlert(ctx context.Context, id int64, resolvedBy, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET is_resolved = true, resolved_at = now(), resolved_by = $2, resolution_notes = $3, updated_at = now()
		WHERE id = $1`, id, resolvedBy, notes)
	if err != nil {
		return fmt.Errorf("pg: resolve alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGStore) ListUnresolvedAlerts(ctx context.Context) ([]*models.Alert, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+alertCols+` FROM alerts WHERE NOT is_resolved ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pg: list unresolved alerts: %w", err)
	}
	defer rows.Close()
	var out []*models.Alert
	for rows.Next() {
		a := &models.Alert{}
		if err := rows.Scan(&a.ID, &a.Type, &a.FilingID, &a.ExhibitID, &a.DealID, &a.Title, &a.Description, &a.ExhibitLink,
			&a.FieldsNeeded, &a.PreambleHash, &a.PreamblePreview, &a.IsResolved, &a.ResolvedAt, &a.ResolvedBy,
			&a.ResolutionNotes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan alert row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) ListAlerts(ctx context.Context, status string, kind models.AlertType) ([]*models.Alert, error) {
	query := `SELECT ` + alertCols + ` FROM alerts WHERE true`
	args := []any{}
	switch status {
	case "open":
		query += ` AND NOT is_resolved`
	case "resolved":
		query += ` AND is_resolved`
	}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list alerts: %w", err)
	}
	defer rows.Close()
	var out []*models.Alert
	for rows.Next() {
		a, err := s.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const manualInputCols = `id, alert_id, deal_id, financing_event_id, input_type, data, entered_by, entered_at,
	notes, verified_at, verified_by, created_at, updated_at`

func (s *PGStore) CreateManualInput(ctx context.Context, m *models.ManualInput) error {
	payload, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("pg: marshal manual input data: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO manual_inputs (alert_id, deal_id, financing_event_id, input_type, data, entered_by, notes, verified_at, verified_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, entered_at, created_at, updated_at`,
		m.AlertID, m.DealID, m.FinancingEventID, m.InputType, payload, m.EnteredBy, m.Notes, m.VerifiedAt, m.VerifiedBy,
	).Scan(&m.ID, &m.EnteredAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pg: create manual input: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), without importing pgconn's error type directly into
// callers — CreateDeal uses it to translate into store.ErrDealKeyExists.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
