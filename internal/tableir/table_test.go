package tableir

import "testing"

const syndicateTableHTML = `
<table>
<tr><th>Bank</th><th>Role</th><th>Commitment</th></tr>
<tr><td>JPMorgan Chase Bank, N.A.</td><td>Administrative Agent</td><td>$100,000,000</td></tr>
<tr><td>Goldman Sachs Bank USA</td><td>Joint Bookrunner</td><td>$75,000,000</td></tr>
<tr><td>Wells Fargo Securities, LLC</td><td>Joint Bookrunner</td><td>$75,000,000</td></tr>
</table>`

func TestParseTablesDetectsHeaderAndColumns(t *testing.T) {
	tables := ParseTables(syndicateTableHTML)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	tbl := tables[0]
	if tbl.HeaderRows != 1 {
		t.Errorf("expected 1 header row, got %d", tbl.HeaderRows)
	}
	if tbl.RoleCol == -1 {
		t.Error("expected a role column to be detected")
	}
	if tbl.BankCol == -1 {
		t.Error("expected a bank column to be detected")
	}
}

func TestExtractTriplesFindsBankRolePairs(t *testing.T) {
	tables := ParseTables(syndicateTableHTML)
	triples := ExtractTriples(tables[0], "Bank Role Commitment")
	if len(triples) != 3 {
		t.Fatalf("expected 3 triples, got %d: %+v", len(triples), triples)
	}
	if triples[0].Role != "Administrative Agent" {
		t.Errorf("got role %q", triples[0].Role)
	}
	if triples[2].BankNameRaw != "Wells Fargo Securities, LLC" {
		t.Errorf("got bank %q", triples[2].BankNameRaw)
	}
}

func TestManualFallbackMatchesGoqueryPath(t *testing.T) {
	rows := tokenizeRows(`
		<tr><th>Bank</th><th>Role</th></tr>
		<tr><td>Citigroup Global Markets Inc.</td><td>Lead Arranger</td></tr>
	`)
	manual := buildGrid(rows)

	tables := ParseTables(`<table><tr><th>Bank</th><th>Role</th></tr><tr><td>Citigroup Global Markets Inc.</td><td>Lead Arranger</td></tr></table>`)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table via goquery path, got %d", len(tables))
	}
	viaGoquery := tables[0]

	manualTriples := ExtractTriples(manual, "Bank Role")
	goqueryTriples := ExtractTriples(viaGoquery, "Bank Role")

	if len(manualTriples) != len(goqueryTriples) {
		t.Fatalf("triple count mismatch: manual=%d goquery=%d", len(manualTriples), len(goqueryTriples))
	}
	for i := range manualTriples {
		if manualTriples[i].BankNameRaw != goqueryTriples[i].BankNameRaw ||
			manualTriples[i].Role != goqueryTriples[i].Role {
			t.Errorf("triple %d mismatch: manual=%+v goquery=%+v", i, manualTriples[i], goqueryTriples[i])
		}
	}
}

func TestColspanRowspanExpansion(t *testing.T) {
	rows := tokenizeRows(`
		<tr><td colspan="2">Merged Header</td></tr>
		<tr><td>Bank of America, N.A.</td><td>Syndication Agent</td></tr>
	`)
	tbl := buildGrid(rows)
	if tbl.Cols != 2 {
		t.Fatalf("expected 2 cols, got %d", tbl.Cols)
	}
	if tbl.Grid[0][0].Text != "Merged Header" || tbl.Grid[0][1].Text != "Merged Header" {
		t.Errorf("expected colspan to propagate text across both cells, got %+v", tbl.Grid[0])
	}
}
