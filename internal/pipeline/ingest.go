package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/txplain/txplain/internal/extract"
	"github.com/txplain/txplain/internal/fetcher"
	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/normalize"
	"github.com/txplain/txplain/internal/store"
)

// IngestStats summarizes one Ingest call.
type IngestStats struct {
	FilingsFound    int
	FilingsIngested int
	FilingsSkipped  int
	FactsExtracted  int
	AlertsRaised    int
}

var exhibitNumberPattern = regexp.MustCompile(`EX-(\d+)\.?(\d*)`)

// materialKeywords mirrors the original ingestion worker's
// MATERIAL_EXHIBIT_PATTERNS set, used to flag an exhibit description as
// material regardless of whether its text ultimately parses.
var materialKeywords = regexp.MustCompile(`(?i)credit\s+agreement|commitment\s+letter|bridge|debt\s+financing|underwriting\s+agreement|indenture|loan\s+agreement|term\s+loan|revolving`)

// exhibitRow is one document-table row parsed out of a filing's index page.
type exhibitRow struct {
	description string
	documentURL string
}

// Ingest fetches cik's filings matching formTypes within [startDate,
// endDate], skips any already-ingested accession number, fetches each
// filing's primary document and every non-PDF exhibit listed in its index,
// normalizes them to
// visual text, persists Filing/Exhibit rows, and runs extraction.
func (c *Core) Ingest(ctx context.Context, cik string, formTypes []string, startDate, endDate string) (IngestStats, error) {
	var stats IngestStats

	headers, err := c.Fetcher.ListFilings(ctx, cik, formTypes, startDate, endDate)
	if err != nil {
		return stats, fmt.Errorf("pipeline: ingest: list filings: %w", err)
	}
	stats.FilingsFound = len(headers)

	for _, h := range headers {
		if _, err := c.Store.FilingByAccession(ctx, h.AccessionNumber); err == nil {
			stats.FilingsSkipped++
			continue
		} else if err != store.ErrNotFound {
			return stats, fmt.Errorf("pipeline: ingest: lookup existing filing: %w", err)
		}

		filing, alerts, err := c.ingestOneFiling(ctx, h)
		if err != nil {
			c.Log.Warn().Str("accession", h.AccessionNumber).Err(err).Msg("pipeline: ingest: filing failed")
			stats.FilingsSkipped++
			continue
		}

		result := extract.FromFiling(filing)
		result.Alerts = append(alerts, result.Alerts...)

		for _, fact := range result.Facts {
			if err := c.Store.CreateFact(ctx, fact); err != nil {
				return stats, fmt.Errorf("pipeline: ingest: persist fact: %w", err)
			}
		}
		for _, alert := range result.Alerts {
			if err := c.Store.CreateAlert(ctx, alert); err != nil {
				return stats, fmt.Errorf("pipeline: ingest: persist alert: %w", err)
			}
		}

		stats.FilingsIngested++
		stats.FactsExtracted += len(result.Facts)
		stats.AlertsRaised += len(result.Alerts)

		c.Log.Info().Str("accession", h.AccessionNumber).Str("form_type", h.FormType).
			Int("facts", len(result.Facts)).Int("alerts", len(result.Alerts)).Msg("pipeline: filing ingested")
	}

	return stats, nil
}

func (c *Core) ingestOneFiling(ctx context.Context, h fetcher.FilingHeader) (*models.Filing, []*models.Alert, error) {
	primary, err := c.Fetcher.FetchDocument(ctx, h.CIK, h.AccessionNumber, h.PrimaryDocument)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch primary document: %w", err)
	}

	normalizedText, err := normalize.Text(primary)
	if err != nil {
		normalizedText = ""
	}

	filing := &models.Filing{
		AccessionNumber: h.AccessionNumber,
		CIK:             h.CIK,
		CompanyName:     h.CompanyName,
		FormType:        h.FormType,
		RawMarkup:       primary,
		NormalizedText:  normalizedText,
	}
	if d, err := parseFilingDate(h.FilingDate); err == nil {
		filing.FilingDate = d
	}

	if err := c.Store.CreateFiling(ctx, filing); err != nil {
		return nil, nil, fmt.Errorf("persist filing: %w", err)
	}

	exhibitRows, err := c.fetchExhibitIndex(ctx, h.CIK, h.AccessionNumber)
	if err != nil {
		c.Log.Warn().Str("accession", h.AccessionNumber).Err(err).Msg("pipeline: ingest: could not fetch filing index")
		return filing, nil, nil
	}

	var alerts []*models.Alert
	for _, row := range exhibitRows {
		exhibit, alert, err := c.buildExhibit(ctx, filing, h.CIK, h.AccessionNumber, row)
		if err != nil {
			c.Log.Warn().Str("accession", h.AccessionNumber).Str("exhibit", row.description).Err(err).Msg("pipeline: ingest: exhibit fetch failed")
			continue
		}
		if exhibit == nil {
			continue
		}
		filing.Exhibits = append(filing.Exhibits, exhibit)
		if alert != nil {
			alerts = append(alerts, alert)
		}
	}

	return filing, alerts, nil
}

func (c *Core) fetchExhibitIndex(ctx context.Context, cik, accession string) ([]exhibitRow, error) {
	body, err := c.Fetcher.FetchFilingIndex(ctx, cik, accession)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse filing index: %w", err)
	}

	var rows []exhibitRow
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 3 {
			return
		}
		desc := strings.TrimSpace(cells.Eq(1).Text())
		upper := strings.ToUpper(desc)
		if !strings.Contains(upper, "EX-") && !strings.Contains(upper, "EXHIBIT") {
			return
		}
		link := cells.Eq(2).Find("a").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		rows = append(rows, exhibitRow{description: desc, documentURL: documentNameFromHref(href)})
	})
	return rows, nil
}

func documentNameFromHref(href string) string {
	parts := strings.Split(href, "/")
	return parts[len(parts)-1]
}

// buildExhibit fetches and normalizes one exhibit's content, classifies its
// ExhibitType from the index description, and raises an
// UnparsedMaterialExhibit alert when a material exhibit's text failed to
// extract (§7).
func (c *Core) buildExhibit(ctx context.Context, filing *models.Filing, cik, accession string, row exhibitRow) (*models.Exhibit, *models.Alert, error) {
	if strings.HasSuffix(strings.ToLower(row.documentURL), ".pdf") {
		return nil, nil, fmt.Errorf("pdf exhibits are not parsed")
	}

	content, err := c.Fetcher.FetchDocument(ctx, cik, accession, row.documentURL)
	if err != nil {
		return nil, nil, err
	}

	text, textErr := normalize.Text(content)
	isMaterial := materialKeywords.MatchString(row.description)

	exhibit := &models.Exhibit{
		FilingID:       filing.ID,
		Type:           classifyExhibitType(row.description),
		Description:    row.description,
		IsMaterial:     isMaterial,
		RawContent:     content,
		NormalizedText: text,
		Quality:        models.ExtractionQualityOK,
	}
	if textErr != nil || strings.TrimSpace(text) == "" {
		exhibit.Quality = models.ExtractionQualityFailed
	}

	if err := c.Store.CreateExhibit(ctx, exhibit); err != nil {
		return nil, nil, fmt.Errorf("persist exhibit: %w", err)
	}

	var alert *models.Alert
	if exhibit.Quality == models.ExtractionQualityFailed && isMaterial {
		alert = &models.Alert{
			Type:         models.AlertTypeUnparsedMaterialExhibit,
			FilingID:     &filing.ID,
			ExhibitID:    &exhibit.ID,
			Title:        fmt.Sprintf("Material exhibit %q failed to extract", row.description),
			Description:  "This exhibit matched the material-keyword set but produced no usable text after extraction.",
			FieldsNeeded: []string{"facility_type", "amount", "participants", "roles", "purpose"},
		}
	}

	return exhibit, alert, nil
}

// classifyExhibitType maps an EX-N.N index description to the Exhibit
// taxonomy, mirroring the original ingestion worker's regex extraction of
// the exhibit number followed by a content-keyword disambiguation for the
// numbers SEC filers reuse across unrelated document kinds (EX-10.*).
func classifyExhibitType(description string) models.ExhibitType {
	upper := strings.ToUpper(description)
	lower := strings.ToLower(description)

	m := exhibitNumberPattern.FindStringSubmatch(upper)
	if m == nil {
		return models.ExhibitTypeOther
	}
	major, _ := strconv.Atoi(m[1])

	switch major {
	case 2:
		return models.ExhibitTypeMergerAgreement
	case 1:
		return models.ExhibitTypeUnderwriting
	case 99:
		return models.ExhibitTypePressRelease
	case 10:
		if strings.Contains(lower, "equity") || strings.Contains(lower, "commitment") {
			return models.ExhibitTypeEquityCommitment
		}
		return models.ExhibitTypeCreditAgreement
	default:
		return models.ExhibitTypeOther
	}
}

func parseFilingDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
