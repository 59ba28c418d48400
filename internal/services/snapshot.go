package services

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/agencyflow/docflow/internal/models"
)

// Pricing is the terms payload frozen into a document at creation.
type Pricing struct {
	SetupFee   float64 `json:"setup_fee"`
	MonthlyFee float64 `json:"monthly_fee"`
	TermMonths int     `json:"term_months"`
	Currency   string  `json:"currency"`
}

// TotalValue computes the full engagement value: setup fee plus monthly price
// over the term.
func (p Pricing) TotalValue() float64 {
	return p.SetupFee + p.MonthlyFee*float64(p.TermMonths)
}

// Snapshot is the denormalized copy of source data a document carries from
// creation on. Editing or deleting the consultation afterwards does not touch
// it; that is the whole point.
type Snapshot struct {
	Agency  map[string]string `json:"agency"`
	Client  map[string]string `json:"client"`
	Pricing Pricing           `json:"pricing"`
}

// BuildSnapshot freezes agency profile and consultation data. Intake answers
// are flattened into the client namespace through the closed value switch.
func BuildSnapshot(agency *models.Agency, c *models.Consultation) Snapshot {
	snap := Snapshot{
		Agency: map[string]string{
			"name":       agency.Name,
			"legal_name": agency.LegalName,
			"email":      agency.Email,
			"phone":      agency.Phone,
			"website":    agency.Website,
			"address":    joinAddress(agency.AddressLine1, agency.AddressLine2, agency.PostalCode, agency.City, agency.Country),
			"vat_number": agency.VATNumber,
			"iban":       agency.IBAN,
		},
		Client: map[string]string{},
	}
	if c == nil {
		return snap
	}
	snap.Client["name"] = c.ClientName
	snap.Client["company"] = c.ClientCompany
	snap.Client["email"] = c.ClientEmail
	snap.Client["phone"] = c.ClientPhone
	snap.Client["address"] = joinAddress(c.AddressLine1, c.AddressLine2, c.PostalCode, c.City, c.Country)
	for _, a := range c.Answers {
		if a.Field == "" {
			continue
		}
		if _, taken := snap.Client[a.Field]; taken {
			continue // identity fields win over intake answers
		}
		snap.Client[a.Field] = answerString(a)
	}
	snap.Pricing = Pricing{SetupFee: c.SetupFee, MonthlyFee: c.MonthlyFee, TermMonths: c.TermMonths, Currency: c.Currency}
	return snap
}

// answerString renders one intake answer. Kind is a closed set; unknown kinds
// render empty rather than guessing.
func answerString(a models.IntakeAnswer) string {
	switch a.Kind {
	case models.FieldText:
		return a.TextValue
	case models.FieldNumber:
		return strconv.FormatFloat(a.NumberValue, 'f', -1, 64)
	case models.FieldBool:
		if a.BoolValue {
			return "yes"
		}
		return "no"
	case models.FieldList:
		return strings.Join(splitNonEmpty(a.ListValue), ", ")
	default:
		return ""
	}
}

func (s Snapshot) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeSnapshot(raw string) (Snapshot, error) {
	var s Snapshot
	if raw == "" {
		s.Agency = map[string]string{}
		s.Client = map[string]string{}
		return s, nil
	}
	err := json.Unmarshal([]byte(raw), &s)
	if s.Agency == nil {
		s.Agency = map[string]string{}
	}
	if s.Client == nil {
		s.Client = map[string]string{}
	}
	return s, err
}

func joinAddress(parts ...string) string {
	return strings.Join(splitNonEmptySlice(parts), ", ")
}

func splitNonEmpty(v string) []string {
	return splitNonEmptySlice(strings.Split(v, "\n"))
}

func splitNonEmptySlice(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
