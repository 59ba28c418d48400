package services

import (
	"regexp"
	"strconv"
	"time"

	"github.com/agencyflow/docflow/internal/models"
)

// MergeContext is the request-scoped aggregate merge fields resolve against.
// It is rebuilt for every render and never persisted.
type MergeContext struct {
	Agency   map[string]string
	Client   map[string]string
	Proposal map[string]string
	Contract map[string]string
	Invoice  map[string]string
	Pricing  Pricing
	Now      time.Time // fixed at build time so rendering stays deterministic
}

// NewMergeContext assembles a context from a document's frozen snapshot plus
// the document's own identity fields.
func NewMergeContext(snap Snapshot, doc *models.Document, now time.Time) MergeContext {
	ctx := MergeContext{
		Agency:   snap.Agency,
		Client:   snap.Client,
		Proposal: map[string]string{},
		Contract: map[string]string{},
		Invoice:  map[string]string{},
		Pricing:  snap.Pricing,
		Now:      now,
	}
	if doc == nil {
		return ctx
	}
	self := map[string]string{
		"number":     doc.Label,
		"status":     doc.Status,
		"issue_date": doc.CreatedAt.Format("2006-01-02"),
	}
	if doc.ValidUntil != nil {
		self["valid_until"] = doc.ValidUntil.Format("2006-01-02")
	}
	switch doc.Kind {
	case models.KindProposal, models.KindQuotation:
		ctx.Proposal = self
	case models.KindContract:
		ctx.Contract = self
	case models.KindInvoice:
		ctx.Invoice = self
	}
	return ctx
}

// Computed fields are pure functions of already-resolved data. None of them
// may reference another computed field, so resolution cannot cycle.
var computedFields = map[string]func(MergeContext) string{
	"total_value": func(c MergeContext) string {
		return formatAmount(c.Pricing.TotalValue(), c.Pricing.Currency)
	},
	"setup_fee": func(c MergeContext) string {
		return formatAmount(c.Pricing.SetupFee, c.Pricing.Currency)
	},
	"monthly_fee": func(c MergeContext) string {
		return formatAmount(c.Pricing.MonthlyFee, c.Pricing.Currency)
	},
	"term_months": func(c MergeContext) string {
		return strconv.Itoa(c.Pricing.TermMonths)
	},
	"today": func(c MergeContext) string {
		return c.Now.Format("2006-01-02")
	},
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-z]+)\.([A-Za-z0-9_]+)\s*\}\}`)

// Resolve substitutes {{namespace.field}} placeholders. Unresolvable ones are
// left verbatim in the output (never deleted) and reported back so the
// operator can see what is missing; that is a fail-open policy, not an error.
// Resolving the same template against the same context is idempotent.
func Resolve(template string, ctx MergeContext) (string, []string) {
	var unresolved []string
	out := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		ns, field := sub[1], sub[2]
		if v, ok := lookupField(ctx, ns, field); ok {
			return v
		}
		unresolved = append(unresolved, ns+"."+field)
		return m
	})
	return out, unresolved
}

// lookupField resolves one placeholder against the closed namespace set.
// Unknown namespaces resolve to nothing, same as unknown fields.
func lookupField(ctx MergeContext, ns, field string) (string, bool) {
	var m map[string]string
	switch ns {
	case "agency":
		m = ctx.Agency
	case "client":
		m = ctx.Client
	case "proposal":
		m = ctx.Proposal
	case "contract":
		m = ctx.Contract
	case "invoice":
		m = ctx.Invoice
	case "computed":
		if fn, ok := computedFields[field]; ok {
			return fn(ctx), true
		}
		return "", false
	default:
		return "", false
	}
	v, ok := m[field]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func formatAmount(v float64, currency string) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if currency == "" {
		return s
	}
	return s + " " + currency
}
