// Package normalize turns raw EDGAR HTML into the flat visual-text buffer
// the pattern pack and table parser operate on.
//
// EDGAR HTML is rarely semantic — filers lean on <div>/<font>/<br><br> for
// layout rather than <p>. Walking the DOM and re-inserting paragraph breaks
// at block-level boundaries reproduces what a human reading the rendered
// filing would see, which is what the regex patterns are written against.
package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements create a visual paragraph break before and after themselves.
var blockElements = map[atom.Atom]bool{
	atom.Div: true, atom.P: true, atom.Tr: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Table: true, atom.Thead: true, atom.Tbody: true, atom.Tfoot: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Aside: true, atom.Nav: true, atom.Blockquote: true, atom.Pre: true, atom.Hr: true,
	atom.Address: true, atom.Figcaption: true, atom.Figure: true, atom.Main: true,
	atom.Dd: true, atom.Dt: true, atom.Dl: true,
}

// skippedElements are dropped along with their subtree.
var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Head: true,
	atom.Meta: true, atom.Link: true,
}

// charReplacements normalizes smart quotes, dashes, and non-breaking
// whitespace to ASCII so the pattern pack's regexes match reliably.
var charReplacements = map[string]string{
	"“": `"`, "”": `"`, "„": `"`, "‟": `"`,
	"‘": "'", "’": "'", "‚": "'", "‛": "'",
	"–": "-", "—": "-", "―": "-", "‒": "-",
	" ": " ", " ": " ", " ": " ", " ": " ", " ": " ",
	"​": "", "﻿": "",
}

var (
	spaceRun     = regexp.MustCompile(`[ \t]+`)
	newlineRun   = regexp.MustCompile(`\n{3,}`)
	spaceAroundNL = regexp.MustCompile(` *\n *`)
)

// Extractor walks a parsed HTML document and accumulates a normalized text
// buffer, mirroring the teacher's block-boundary walker.
type Extractor struct {
	buf         strings.Builder
	lastWasBlock bool
}

// Text runs the full extraction pipeline: goquery-based noise stripping,
// then a block-aware DOM walk, then character/whitespace normalization.
func Text(rawHTML []byte) (string, error) {
	cleaned, err := stripNoise(rawHTML)
	if err != nil {
		return "", err
	}
	node, err := html.Parse(strings.NewReader(cleaned))
	if err != nil {
		return "", err
	}
	e := &Extractor{}
	e.walk(node)
	return normalizeText(e.buf.String()), nil
}

// Preamble returns the first n characters of normalized text, used for the
// alert-dedup fingerprint (SHA-256 over the preamble, per §4.4).
func Preamble(rawHTML []byte, n int) (string, error) {
	text, err := Text(rawHTML)
	if err != nil {
		return "", err
	}
	if len(text) <= n {
		return text, nil
	}
	return text[:n], nil
}

// stripNoise removes script/style/hidden elements via goquery before the
// block-aware walk runs — the same division of labor the pack's EDGAR
// parsers use goquery for (cleanup) versus a dedicated text walker (layout).
func stripNoise(rawHTML []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		return string(rawHTML), nil
	}
	doc.Find("script, style, noscript, [hidden]").Remove()
	doc.Find(`[style*="display:none"], [style*="display: none"]`).Remove()
	out, err := doc.Html()
	if err != nil {
		return string(rawHTML), nil
	}
	return out, nil
}

func (e *Extractor) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			e.buf.WriteString(n.Data)
			e.lastWasBlock = false
		}
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			e.walk(c)
		}
		return
	}

	isBlock := blockElements[n.DataAtom]
	if isBlock && !e.lastWasBlock {
		e.buf.WriteString("\n\n")
		e.lastWasBlock = true
	}

	switch n.DataAtom {
	case atom.Td, atom.Th:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			e.walk(c)
		}
		e.addCellSeparator()
		return
	case atom.Br:
		e.buf.WriteString("\n")
		e.lastWasBlock = false
		return
	case atom.Tr:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			e.walk(c)
		}
		e.buf.WriteString("\n")
		e.lastWasBlock = true
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c)
	}

	if isBlock && !e.lastWasBlock {
		e.buf.WriteString("\n\n")
		e.lastWasBlock = true
	}
}

// addCellSeparator inserts " | " between adjacent table cells so two
// unrelated values never fuse into one token (e.g. "PartyAPartyB").
func (e *Extractor) addCellSeparator() {
	current := e.buf.String()
	trimmed := strings.TrimRight(current, " ")
	if trimmed == "" {
		return
	}
	last := trimmed[len(trimmed)-1]
	if strings.ContainsRune(".!?;:\n|", rune(last)) {
		return
	}
	e.buf.WriteString(" | ")
}

func normalizeText(text string) string {
	for old, newv := range charReplacements {
		text = strings.ReplaceAll(text, old, newv)
	}
	text = spaceRun.ReplaceAllString(text, " ")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	text = spaceAroundNL.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
