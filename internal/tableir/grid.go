// Package tableir builds a dense, span-expanded grid representation of
// HTML tables and extracts (bank, role, evidence) triples from them.
//
// EDGAR underwriting/syndicate tables lean heavily on rowspan/colspan to
// avoid repeating bank names across roles, so a naive cell-by-cell walk
// misaligns columns; the grid has to account for spans before any
// role/bank-column heuristic can run.
package tableir

import "strings"

// Cell is one dense-grid position. Spanned positions all reference the
// same origin cell's Text but carry their own IsHeader/IsOrigin flags.
type Cell struct {
	Text     string
	Row, Col int
	RowSpan  int
	ColSpan  int
	IsHeader bool
	IsOrigin bool // true only at the cell's top-left position
}

// Table is a dense rows×cols grid plus the column roles the parser
// inferred from it.
type Table struct {
	Grid         [][]Cell
	Rows, Cols   int
	HeaderRows   int
	RoleCol      int // -1 if none detected
	BankCol      int // -1 if none detected
}

// rawCell is a single <td>/<th> as read off the source tree, before span
// expansion.
type rawCell struct {
	text     string
	colSpan  int
	rowSpan  int
	isHeader bool
}

// buildGrid runs the two-pass construction described in §4.3: the first
// pass gathers raw cells per row, the second allocates a grid sized to the
// widest row and places each cell at the next empty column, propagating it
// across every covered (rowspan × colspan) position.
func buildGrid(rows [][]rawCell) *Table {
	if len(rows) == 0 {
		return &Table{RoleCol: -1, BankCol: -1}
	}

	maxCols := 0
	for _, row := range rows {
		sum := 0
		for _, c := range row {
			sum += c.colSpan
		}
		if sum > maxCols {
			maxCols = sum
		}
	}
	if maxCols == 0 {
		return &Table{RoleCol: -1, BankCol: -1}
	}

	numRows := len(rows)
	grid := make([][]Cell, numRows)
	for i := range grid {
		grid[i] = make([]Cell, maxCols)
		for j := range grid[i] {
			grid[i][j] = Cell{Row: i, Col: j}
		}
	}
	occupied := make([][]bool, numRows)
	for i := range occupied {
		occupied[i] = make([]bool, maxCols)
	}

	for r, row := range rows {
		col := 0
		for _, raw := range row {
			for col < maxCols && occupied[r][col] {
				col++
			}
			if col >= maxCols {
				break
			}
			rowSpan, colSpan := raw.rowSpan, raw.colSpan
			if rowSpan < 1 {
				rowSpan = 1
			}
			if colSpan < 1 {
				colSpan = 1
			}
			for dr := 0; dr < rowSpan; dr++ {
				for dc := 0; dc < colSpan; dc++ {
					tr, tc := r+dr, col+dc
					if tr >= numRows || tc >= maxCols {
						continue
					}
					occupied[tr][tc] = true
					grid[tr][tc] = Cell{
						Text:     raw.text,
						Row:      tr,
						Col:      tc,
						RowSpan:  rowSpan,
						ColSpan:  colSpan,
						IsHeader: raw.isHeader,
						IsOrigin: dr == 0 && dc == 0,
					}
				}
			}
			col += colSpan
		}
	}

	t := &Table{Grid: grid, Rows: numRows, Cols: maxCols, RoleCol: -1, BankCol: -1}
	t.HeaderRows = detectHeaderRows(t)
	t.RoleCol = detectRoleColumn(t)
	t.BankCol = detectBankColumn(t)
	return t
}

// headerKeywords flags a short first row as a header even when its cells
// are plain <td>s, per §4.3 rule 2.
var headerKeywords = []string{"name", "lender", "underwriter", "role", "institution", "amount", "commitment"}

func detectHeaderRows(t *Table) int {
	headerRows := 0
	limit := t.Rows
	if limit > 3 {
		limit = 3
	}
	for r := 0; r < limit; r++ {
		if rowIsAllHeaderCells(t, r) {
			headerRows++
			continue
		}
		if r == 0 && rowLooksLikeHeader(t, r) {
			headerRows++
			continue
		}
		break
	}
	return headerRows
}

func rowIsAllHeaderCells(t *Table, r int) bool {
	sawNonEmpty := false
	for c := 0; c < t.Cols; c++ {
		cell := t.Grid[r][c]
		text := strings.TrimSpace(cell.Text)
		if text == "" {
			continue
		}
		sawNonEmpty = true
		if !cell.IsHeader {
			return false
		}
	}
	return sawNonEmpty
}

func rowLooksLikeHeader(t *Table, r int) bool {
	sawNonEmpty := false
	for c := 0; c < t.Cols; c++ {
		text := strings.TrimSpace(t.Grid[r][c].Text)
		if text == "" {
			continue
		}
		sawNonEmpty = true
		if len(text) >= 30 {
			return false
		}
		lower := strings.ToLower(text)
		hit := false
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return sawNonEmpty
}

func detectRoleColumn(t *Table) int {
	best, bestDensity := -1, 0.0
	for c := 0; c < t.Cols; c++ {
		total, hits := 0, 0
		for r := t.HeaderRows; r < t.Rows; r++ {
			cell := t.Grid[r][c]
			if !cell.IsOrigin || strings.TrimSpace(cell.Text) == "" {
				continue
			}
			total++
			if MatchesRoleKeyword(cell.Text) {
				hits++
			}
		}
		if total == 0 {
			continue
		}
		density := float64(hits) / float64(total)
		if density >= 0.30 && density > bestDensity {
			best, bestDensity = c, density
		}
	}
	return best
}

func detectBankColumn(t *Table) int {
	best, bestDensity := -1, 0.0
	for c := 0; c < t.Cols; c++ {
		total, hits := 0, 0
		for r := t.HeaderRows; r < t.Rows; r++ {
			cell := t.Grid[r][c]
			text := strings.TrimSpace(cell.Text)
			if !cell.IsOrigin || text == "" || isNumericOnly(text) {
				continue
			}
			total++
			if MatchesBankName(text) {
				hits++
			}
		}
		if total == 0 {
			continue
		}
		density := float64(hits) / float64(total)
		if density >= 0.20 && density > bestDensity {
			best, bestDensity = c, density
		}
	}
	return best
}

func isNumericOnly(s string) bool {
	sawDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			sawDigit = true
		case r == '.' || r == ',' || r == '$' || r == '%' || r == '(' || r == ')' || r == '-' || r == ' ':
		default:
			return false
		}
	}
	return sawDigit
}
