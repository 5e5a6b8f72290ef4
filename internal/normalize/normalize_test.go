package normalize

import (
	"strings"
	"testing"
)

func TestTextCollapsesBlocksAndBreaks(t *testing.T) {
	raw := []byte(`<html><body><div>First paragraph.</div><div>Second paragraph.</div><p>Third<br>line.</p></body></html>`)
	got, err := Text(raw)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(got, "First paragraph.\n\nSecond paragraph.") {
		t.Errorf("expected block boundary between divs, got %q", got)
	}
	if !strings.Contains(got, "Third\nline.") {
		t.Errorf("expected <br> to become a newline, got %q", got)
	}
}

func TestTextSeparatesTableCells(t *testing.T) {
	raw := []byte(`<html><body><table><tr><td>PartyA</td><td>PartyB</td></tr></table></body></html>`)
	got, err := Text(raw)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(got, "PartyA | PartyB") {
		t.Errorf("expected cell separator, got %q", got)
	}
}

func TestTextNormalizesSmartPunctuation(t *testing.T) {
	raw := []byte("<html><body><div>“Hello’s—world”</div></body></html>")
	got, err := Text(raw)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if strings.ContainsAny(got, "“”’—") {
		t.Errorf("expected smart punctuation normalized, got %q", got)
	}
	if !strings.Contains(got, `"Hello's-world"`) {
		t.Errorf("got %q", got)
	}
}

func TestTextStripsScriptAndStyle(t *testing.T) {
	raw := []byte(`<html><head><style>.x{color:red}</style></head><body><script>alert(1)</script><div>Visible</div></body></html>`)
	got, err := Text(raw)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("expected script/style stripped, got %q", got)
	}
	if !strings.Contains(got, "Visible") {
		t.Errorf("expected visible text preserved, got %q", got)
	}
}

func TestPreambleTruncates(t *testing.T) {
	raw := []byte(`<html><body><div>` + strings.Repeat("x", 10000) + `</div></body></html>`)
	got, err := Preamble(raw, 100)
	if err != nil {
		t.Fatalf("Preamble: %v", err)
	}
	if len(got) != 100 {
		t.Errorf("expected 100 chars, got %d", len(got))
	}
}
