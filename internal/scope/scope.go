// Package scope enforces tenant isolation. Every engine operation takes an
// explicit agency Scope; a zero scope is rejected up front instead of running
// an unscoped query.
package scope

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Sentinel errors for scope resolution.
var (
	ErrMissingAgency = errors.New("missing_agency")
)

// Scope carries the mandatory tenant identifier for one request.
type Scope struct {
	AgencyID uint
}

// New builds a Scope, rejecting the zero agency ID.
func New(agencyID uint) (Scope, error) {
	if agencyID == 0 {
		return Scope{}, ErrMissingAgency
	}
	return Scope{AgencyID: agencyID}, nil
}

// Valid reports whether the scope carries an agency.
func (s Scope) Valid() bool { return s.AgencyID != 0 }

// Where applies the tenant filter to a query. Callers chain it on every read
// and write so cross-tenant access is impossible by construction.
func (s Scope) Where(db *gorm.DB) *gorm.DB {
	return db.Where("agency_id = ?", s.AgencyID)
}

type ctxKey struct{}

// WithScope stores the scope in a context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext retrieves the scope injected by the middleware.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok && s.Valid()
}
