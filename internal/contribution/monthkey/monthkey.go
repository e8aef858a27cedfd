// Package monthkey resolves the grid month a payment belongs to.
//
// The structured reference month is the baseline. A month name found in the
// free-text description overrides the month, never the year.
package monthkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var ErrMalformedReferenceMonth = errors.New("malformed_reference_month")

// Token maps a lower-case, unaccented month name or abbreviation to a month number.
type Token struct {
	Token string
	Month int
}

// Table is scanned in order; the first token contained in a description wins.
type Table []Token

func DefaultTable() Table {
	return Table{
		{Token: "janeiro", Month: 1},
		{Token: "jan", Month: 1},
		{Token: "fevereiro", Month: 2},
		{Token: "fev", Month: 2},
		{Token: "março", Month: 3},
		{Token: "mar", Month: 3},
		{Token: "abril", Month: 4},
		{Token: "abr", Month: 4},
		{Token: "maio", Month: 5},
		{Token: "mai", Month: 5},
		{Token: "junho", Month: 6},
		{Token: "jun", Month: 6},
		{Token: "julho", Month: 7},
		{Token: "jul", Month: 7},
		{Token: "agosto", Month: 8},
		{Token: "ago", Month: 8},
		{Token: "setembro", Month: 9},
		{Token: "set", Month: 9},
		{Token: "outubro", Month: 10},
		{Token: "out", Month: 10},
		{Token: "novembro", Month: 11},
		{Token: "nov", Month: 11},
		{Token: "dezembro", Month: 12},
		{Token: "dez", Month: 12},
	}
}

type Key struct {
	Year  int
	Month int
}

func (k Key) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Correction records a description that disagreed with the reference month.
type Correction struct {
	ReferenceMonth string `json:"reference_month"`
	Token          string `json:"token"`
	Baseline       string `json:"baseline"`
	Resolved       string `json:"resolved"`
}

type Resolution struct {
	Key        Key
	Correction *Correction
}

type Resolver struct {
	table Table
}

// NewResolver folds every token once so scanning compares like with like.
// Entries with an empty token or an out of range month are skipped.
func NewResolver(table Table) *Resolver {
	folded := make(Table, 0, len(table))
	for _, t := range table {
		token := Fold(t.Token)
		if token == "" || t.Month < 1 || t.Month > 12 {
			continue
		}
		folded = append(folded, Token{Token: token, Month: t.Month})
	}
	return &Resolver{table: folded}
}

func (r *Resolver) Resolve(referenceMonth, description string) (Resolution, error) {
	baseline, err := ParseReferenceMonth(referenceMonth)
	if err != nil {
		return Resolution{}, err
	}

	match, ok := r.Match(description)
	if !ok || match.Month == baseline.Month {
		return Resolution{Key: baseline}, nil
	}

	resolved := Key{Year: baseline.Year, Month: match.Month}
	return Resolution{
		Key: resolved,
		Correction: &Correction{
			ReferenceMonth: referenceMonth,
			Token:          match.Token,
			Baseline:       baseline.String(),
			Resolved:       resolved.String(),
		},
	}, nil
}

// Match returns the first table token contained in the folded description.
func (r *Resolver) Match(description string) (Token, bool) {
	text := Fold(description)
	if text == "" {
		return Token{}, false
	}
	for _, t := range r.table {
		if strings.Contains(text, t.Token) {
			return t, true
		}
	}
	return Token{}, false
}

// ParseReferenceMonth reads YYYY-MM. A trailing day (YYYY-MM-DD) is ignored.
func ParseReferenceMonth(value string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(value), "-")
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedReferenceMonth, value)
	}

	year, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || year <= 0 {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedReferenceMonth, value)
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || month < 1 || month > 12 {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedReferenceMonth, value)
	}

	return Key{Year: year, Month: month}, nil
}

// Fold lower-cases s and strips combining marks, so "Março" becomes "marco".
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(strings.TrimSpace(s)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
