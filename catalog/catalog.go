package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Category selects which person group the report covers.
type Category string

const (
	Individual Category = "individual"
	Couple     Category = "couple"
)

// Subtype is the report tier. Only individual reports offer a choice.
type Subtype string

const (
	Basic   Subtype = "basic"
	Premium Subtype = "premium"
)

// Field names as they appear in the submitted form.
const (
	FieldFullName1  = "fullName1"
	FieldDob1       = "dob1"
	FieldGender1    = "gender1"
	FieldLeftPalm1  = "leftPalm1"
	FieldRightPalm1 = "rightPalm1"

	FieldFullNameP1  = "fullNameP1"
	FieldDobP1       = "dobP1"
	FieldGenderP1    = "genderP1"
	FieldLeftPalmP1  = "leftPalmP1"
	FieldRightPalmP1 = "rightPalmP1"

	FieldFullNameP2  = "fullNameP2"
	FieldDobP2       = "dobP2"
	FieldGenderP2    = "genderP2"
	FieldLeftPalmP2  = "leftPalmP2"
	FieldRightPalmP2 = "rightPalmP2"
)

// Group identifies a block of form fields that is shown or hidden as a whole.
type Group string

const (
	IndividualSection Group = "individualSection"
	CoupleSection     Group = "coupleSection"
)

// PersonFields names the form fields that describe one person.
type PersonFields struct {
	Name      string
	Dob       string
	Gender    string
	LeftPalm  string
	RightPalm string
}

// Requirements is the field set that is active for a category.
type Requirements struct {
	Group   Group
	Persons []PersonFields
}

// TextFields returns the required non-file fields in form order.
func (r Requirements) TextFields() []string {
	var out []string
	for _, p := range r.Persons {
		out = append(out, p.Name, p.Dob, p.Gender)
	}
	return out
}

// UploadFields returns the required file fields in form order.
func (r Requirements) UploadFields() []string {
	var out []string
	for _, p := range r.Persons {
		out = append(out, p.LeftPalm, p.RightPalm)
	}
	return out
}

// All returns every required field of the group.
func (r Requirements) All() []string {
	var out []string
	for _, p := range r.Persons {
		out = append(out, p.Name, p.Dob, p.Gender, p.LeftPalm, p.RightPalm)
	}
	return out
}

var requirements = map[Category]Requirements{
	Individual: {
		Group: IndividualSection,
		Persons: []PersonFields{
			{FieldFullName1, FieldDob1, FieldGender1, FieldLeftPalm1, FieldRightPalm1},
		},
	},
	Couple: {
		Group: CoupleSection,
		Persons: []PersonFields{
			{FieldFullNameP1, FieldDobP1, FieldGenderP1, FieldLeftPalmP1, FieldRightPalmP1},
			{FieldFullNameP2, FieldDobP2, FieldGenderP2, FieldLeftPalmP2, FieldRightPalmP2},
		},
	},
}

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case Individual, Couple:
		return c, nil
	}
	return "", fmt.Errorf("unknown report category %q", s)
}

func ParseSubtype(s string) (Subtype, error) {
	switch t := Subtype(strings.ToLower(strings.TrimSpace(s))); t {
	case Basic, Premium:
		return t, nil
	}
	return "", fmt.Errorf("unknown report subtype %q", s)
}

// Categories lists every category in display order.
func Categories() []Category { return []Category{Individual, Couple} }

// Subtypes lists every subtype in display order.
func Subtypes() []Subtype { return []Subtype{Basic, Premium} }

type key struct {
	category Category
	subtype  Subtype
}

// Catalog is the static price table plus the currency it is quoted in.
type Catalog struct {
	prices   map[key]int
	currency currency.Unit
	symbol   string
	printer  *message.Printer
}

// Entry is one row of the price table.
type Entry struct {
	Category Category `json:"category" mapstructure:"category"`
	Subtype  Subtype  `json:"subtype" mapstructure:"subtype"`
	Amount   int      `json:"amount" mapstructure:"amount"`
}

// DefaultEntries is the price table used when none is configured.
var DefaultEntries = []Entry{
	{Individual, Basic, 50},
	{Individual, Premium, 150},
	{Couple, Premium, 200},
}

// New builds a catalog. Every individual subtype and couple/premium must be
// priced; couple/basic is never looked up.
func New(entries []Entry, currencyCode, symbol string) (*Catalog, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", currencyCode, err)
	}

	c := &Catalog{
		prices:   make(map[key]int, len(entries)),
		currency: unit,
		symbol:   symbol,
		printer:  message.NewPrinter(language.English),
	}
	for _, e := range entries {
		if e.Amount <= 0 {
			return nil, fmt.Errorf("price for %s/%s must be positive, got %d", e.Category, e.Subtype, e.Amount)
		}
		c.prices[key{e.Category, e.Subtype}] = e.Amount
	}

	for _, k := range []key{{Individual, Basic}, {Individual, Premium}, {Couple, Premium}} {
		if _, ok := c.prices[k]; !ok {
			return nil, fmt.Errorf("missing price for %s/%s", k.category, k.subtype)
		}
	}
	return c, nil
}

// Default returns the built-in INR catalog.
func Default() *Catalog {
	c, err := New(DefaultEntries, "INR", "₹")
	if err != nil {
		panic(err)
	}
	return c
}

// EffectiveSubtype returns the subtype that actually applies: couple reports
// are always premium.
func EffectiveSubtype(c Category, s Subtype) Subtype {
	if c == Couple {
		return Premium
	}
	return s
}

// Price looks up the amount for a selection.
func (c *Catalog) Price(category Category, subtype Subtype) (int, error) {
	amount, ok := c.prices[key{category, EffectiveSubtype(category, subtype)}]
	if !ok {
		return 0, fmt.Errorf("no price for %s/%s", category, subtype)
	}
	return amount, nil
}

// Currency returns the ISO code prices are quoted in.
func (c *Catalog) Currency() string { return c.currency.String() }

// DisplayPrice renders an amount the way the form shows it, e.g. "₹150".
func (c *Catalog) DisplayPrice(amount int) string {
	return c.symbol + c.printer.Sprintf("%d", amount)
}

// RequirementsFor returns the active field set of a category.
func RequirementsFor(c Category) Requirements {
	return requirements[c]
}

// InactiveFields returns the fields of every group other than c's.
func InactiveFields(c Category) []string {
	var out []string
	for _, other := range Categories() {
		if other != c {
			out = append(out, requirements[other].All()...)
		}
	}
	return out
}
