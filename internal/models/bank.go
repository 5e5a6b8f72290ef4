package models

// Bank is a canonical financial institution.
type Bank struct {
	ID                 int64
	DisplayName        string
	NormalizedName     string
	IsBulgeBracket     bool
	Aliases            []string
}

// BankAlias maps an alternate spelling to a canonical Bank.
type BankAlias struct {
	ID                int64
	BankID            int64
	AliasRaw          string
	AliasNormalized   string
}
