package tableir

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// tokenizeRows walks tableInnerHTML with the raw stdlib tokenizer, rather
// than goquery's tree-based selection, to recover a best-effort grid from
// markup too degenerate for goquery's DOM build to expose any rows (e.g.
// unterminated tags EDGAR filers occasionally ship in hand-edited tables).
func tokenizeRows(tableInnerHTML string) [][]rawCell {
	z := html.NewTokenizer(strings.NewReader(tableInnerHTML))

	var rows [][]rawCell
	var currentRow []rawCell
	var cellText strings.Builder
	inCell := false
	cellIsHeader := false
	cellColSpan, cellRowSpan := 1, 1

	flushCell := func() {
		if inCell {
			currentRow = append(currentRow, rawCell{
				text:     cleanCellText(cellText.String()),
				colSpan:  cellColSpan,
				rowSpan:  cellRowSpan,
				isHeader: cellIsHeader,
			})
		}
		cellText.Reset()
		inCell = false
		cellColSpan, cellRowSpan = 1, 1
	}
	flushRow := func() {
		flushCell()
		if len(currentRow) > 0 {
			rows = append(rows, currentRow)
		}
		currentRow = nil
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.Data {
			case "tr":
				flushRow()
			case "td", "th":
				flushCell()
				inCell = true
				cellIsHeader = tok.Data == "th"
				for _, a := range tok.Attr {
					switch a.Key {
					case "colspan":
						if v, err := strconv.Atoi(a.Val); err == nil {
							cellColSpan = v
						}
					case "rowspan":
						if v, err := strconv.Atoi(a.Val); err == nil {
							cellRowSpan = v
						}
					}
				}
			case "br":
				if inCell {
					cellText.WriteString(" ")
				}
			}
		case html.EndTagToken:
			switch tok.Data {
			case "td", "th":
				flushCell()
			case "tr":
				flushRow()
			}
		case html.TextToken:
			if inCell {
				cellText.WriteString(tok.Data)
			}
		}
	}
	flushRow()
	return rows
}
