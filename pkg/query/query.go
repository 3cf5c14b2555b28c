// Package query validates and encodes the filters accepted by the ledger
// API's collection endpoints. Validation happens entirely client-side and
// before any remote call; an encoded Query is immutable afterwards.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"ledgersync/pkg/ledger"
)

// ErrInvalidFilter is returned for filter sets the server would reject or
// that make no sense together. It is a caller error and is never retried.
var ErrInvalidFilter = errors.New("query: invalid filter")

const (
	// MaxPageSize is the server-documented page size ceiling. Larger
	// requests are clamped, mirroring server behavior, not rejected.
	MaxPageSize = 100

	// DefaultPageSize is used when no page size is requested.
	DefaultPageSize = 30
)

// Filters is the set of content filters a caller may request for a
// transaction or account listing. Zero values mean "not filtered".
//
// Since/Until and the category filter affect result content, never page
// boundaries: they parameterize the first request of a walk and must not be
// re-supplied alongside a stored cursor (the cursor carries them).
type Filters struct {
	// Status filters transactions by settlement status.
	Status ledger.TransactionStatus

	// Since includes only transactions at or after this time.
	Since time.Time

	// Until includes only transactions before or at this time.
	Until time.Time

	// Category filters by category identifier. Passed through opaquely:
	// an unknown category surfaces as a not-found error from the server.
	Category string

	// Tag filters by tag. Passed through opaquely: an unknown tag
	// surfaces as an empty, successful result set, which is not an error.
	Tag string

	// PageSize is the requested records per page. Must be positive when
	// set; values above MaxPageSize are clamped.
	PageSize int

	// AccountType filters accounts by type (account listings only).
	AccountType ledger.AccountType

	// OwnershipType filters accounts by ownership (account listings only).
	OwnershipType ledger.OwnershipType
}

// IsZero reports whether no filter is set at all.
func (f Filters) IsZero() bool {
	return f == Filters{}
}

// HasContentFilters reports whether any result-content filter is set,
// i.e. anything beyond the page size.
func (f Filters) HasContentFilters() bool {
	g := f
	g.PageSize = 0
	return !g.IsZero()
}

// Validate checks the filter set and returns its encoded query.
func (f Filters) Validate() (Query, error) {
	if f.Status != "" && !f.Status.Valid() {
		return Query{}, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
	if f.AccountType != "" && !f.AccountType.Valid() {
		return Query{}, fmt.Errorf("%w: unknown account type %q", ErrInvalidFilter, f.AccountType)
	}
	if f.OwnershipType != "" && !f.OwnershipType.Valid() {
		return Query{}, fmt.Errorf("%w: unknown ownership type %q", ErrInvalidFilter, f.OwnershipType)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Since.After(f.Until) {
		return Query{}, fmt.Errorf("%w: since %s is after until %s",
			ErrInvalidFilter, f.Since.Format(time.RFC3339), f.Until.Format(time.RFC3339))
	}
	if f.PageSize < 0 {
		return Query{}, fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidFilter, f.PageSize)
	}

	pageSize := f.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	values := url.Values{}
	values.Set("page[size]", strconv.Itoa(pageSize))
	if f.Status != "" {
		values.Set("filter[status]", string(f.Status))
	}
	if !f.Since.IsZero() {
		values.Set("filter[since]", f.Since.Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		values.Set("filter[until]", f.Until.Format(time.RFC3339))
	}
	if f.Category != "" {
		values.Set("filter[category]", f.Category)
	}
	if f.Tag != "" {
		values.Set("filter[tag]", f.Tag)
	}
	if f.AccountType != "" {
		values.Set("filter[accountType]", string(f.AccountType))
	}
	if f.OwnershipType != "" {
		values.Set("filter[ownershipType]", string(f.OwnershipType))
	}

	return Query{encoded: values.Encode()}, nil
}

// ParseRFC3339 parses a caller-supplied timestamp filter value, reporting
// ErrInvalidFilter for anything that is not RFC-3339.
func ParseRFC3339(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC-3339 timestamp", ErrInvalidFilter, value)
	}
	return t, nil
}

// Query is a validated, encoded filter set. The zero Query encodes no
// parameters.
type Query struct {
	encoded string
}

// Encode returns the URL-encoded query string.
func (q Query) Encode() string {
	return q.encoded
}

// IsZero reports whether the query carries no parameters.
func (q Query) IsZero() bool {
	return q.encoded == ""
}
