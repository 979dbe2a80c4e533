package vectorstore

import (
	"strings"

	"gorm.io/gorm"
)

// Filter is the closed set of structured predicates a hybrid search accepts.
// Zero values mean "absent": the predicate is omitted entirely rather than
// matched as a wildcard. Composition is conjunctive, and every search carries
// an implicit available=true on top of the filter.
//
// All predicates compile to parameterized WHERE fragments; no user-provided
// text is ever assembled into SQL.
type Filter struct {
	Make         string
	Model        string
	YearMin      int
	YearMax      int
	PriceMin     float64
	PriceMax     float64
	FuelType     string
	Transmission string
	BodyType     string
	MaxMileage   int
}

// Empty reports whether no predicate is set. An empty filter makes the search
// eligible for the approximate index path.
func (f Filter) Empty() bool {
	return f == Filter{}
}

// apply compiles the set predicates onto q. String equality is
// case-insensitive: extracted entities arrive in whatever casing the customer
// typed.
func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.Make != "" {
		q = q.Where("LOWER(make) = ?", strings.ToLower(f.Make))
	}
	if f.Model != "" {
		q = q.Where("LOWER(model) = ?", strings.ToLower(f.Model))
	}
	if f.YearMin > 0 {
		q = q.Where("year >= ?", f.YearMin)
	}
	if f.YearMax > 0 {
		q = q.Where("year <= ?", f.YearMax)
	}
	if f.PriceMin > 0 {
		q = q.Where("price >= ?", f.PriceMin)
	}
	if f.PriceMax > 0 {
		q = q.Where("price <= ?", f.PriceMax)
	}
	if f.FuelType != "" {
		q = q.Where("LOWER(fuel_type) = ?", strings.ToLower(f.FuelType))
	}
	if f.Transmission != "" {
		q = q.Where("LOWER(transmission) = ?", strings.ToLower(f.Transmission))
	}
	if f.BodyType != "" {
		q = q.Where("LOWER(body_type) = ?", strings.ToLower(f.BodyType))
	}
	if f.MaxMileage > 0 {
		q = q.Where("mileage <= ?", f.MaxMileage)
	}
	return q
}
