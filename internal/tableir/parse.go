package tableir

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Triple is one (bank, role, evidence) extraction from a parsed table,
// carrying its cell origin for downstream FinancingParticipant linkage.
type Triple struct {
	BankNameRaw string
	Role        string
	Evidence    string
	Row, Col    int
}

// ParseTables finds every <table> in html and returns one Table per match.
// goquery's selection walk is the primary path; a table whose walk panics
// or exposes no rows falls back to a manual token-stream grid build so one
// malformed table never drops extraction from the rest of the document.
func ParseTables(htmlContent string) []*Table {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	var tables []*Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		t := parseOneTable(sel)
		if t != nil && t.Rows > 0 {
			tables = append(tables, t)
		}
	})
	return tables
}

func parseOneTable(sel *goquery.Selection) (t *Table) {
	defer func() {
		if r := recover(); r != nil {
			t = parseTableManually(sel)
		}
	}()

	rowsSel := sel.Find("tr")
	if rowsSel.Length() == 0 {
		return parseTableManually(sel)
	}

	var rows [][]rawCell
	rowsSel.Each(func(_ int, tr *goquery.Selection) {
		var row []rawCell
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			colSpan, _ := strconv.Atoi(cell.AttrOr("colspan", "1"))
			rowSpan, _ := strconv.Atoi(cell.AttrOr("rowspan", "1"))
			row = append(row, rawCell{
				text:     cleanCellText(cell.Text()),
				colSpan:  colSpan,
				rowSpan:  rowSpan,
				isHeader: goquery.NodeName(cell) == "th",
			})
		})
		rows = append(rows, row)
	})
	return buildGrid(rows)
}

// parseTableManually is the degenerate-table fallback: it rebuilds the same
// raw-cell rows by re-parsing the selection's inner HTML with the stdlib
// tokenizer instead of goquery's selection API, then runs the same grid
// builder so both paths are required to produce identical triples.
func parseTableManually(sel *goquery.Selection) *Table {
	inner, err := sel.Html()
	if err != nil || strings.TrimSpace(inner) == "" {
		return &Table{RoleCol: -1, BankCol: -1}
	}
	rows := tokenizeRows(inner)
	return buildGrid(rows)
}

func cleanCellText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.Join(strings.Fields(text), " ")
}

// ExtractTriples runs §4.3 rule 5 over a parsed table: for each data row,
// find the first bank cell, resolve its role, and emit a triple whose
// evidence is the row's cells joined together.
func ExtractTriples(t *Table, headerText string) []Triple {
	if t == nil || t.Rows == 0 {
		return nil
	}
	fallbackRole := FallbackRoleForHeader(headerText)

	var out []Triple
	for r := t.HeaderRows; r < t.Rows; r++ {
		bankCol, bankText := firstBankCell(t, r)
		if bankCol == -1 {
			continue
		}
		role := roleForRow(t, r, fallbackRole)
		out = append(out, Triple{
			BankNameRaw: bankText,
			Role:        role,
			Evidence:    joinRow(t, r),
			Row:         r,
			Col:         bankCol,
		})
	}
	return out
}

func firstBankCell(t *Table, r int) (col int, text string) {
	for c := 0; c < t.Cols; c++ {
		cell := t.Grid[r][c]
		trimmed := strings.TrimSpace(cell.Text)
		if !cell.IsOrigin || trimmed == "" || isNumericOnly(trimmed) {
			continue
		}
		if MatchesBankName(trimmed) {
			return c, trimmed
		}
	}
	return -1, ""
}

func roleForRow(t *Table, r int, fallback string) string {
	if t.RoleCol >= 0 {
		text := strings.TrimSpace(t.Grid[r][t.RoleCol].Text)
		if text != "" {
			return text
		}
	}
	for c := 0; c < t.Cols; c++ {
		text := strings.TrimSpace(t.Grid[r][c].Text)
		if text != "" && MatchesRoleKeyword(text) {
			return text
		}
	}
	return fallback
}

func joinRow(t *Table, r int) string {
	var parts []string
	for c := 0; c < t.Cols; c++ {
		cell := t.Grid[r][c]
		if !cell.IsOrigin {
			continue
		}
		text := strings.TrimSpace(cell.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " | ")
}
