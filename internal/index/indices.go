package index

import "github.com/parcelflow-labs/parcelflow-go/internal/domain"

// PriceToRent computes the price-to-rent ratio. Annual rent at or below
// zero is out of domain and yields nil; a zero price with positive rent is
// a legitimate ratio of 0.
func PriceToRent(price, annualRent float64) *float64 {
	if annualRent <= 0 {
		return nil
	}
	ratio := price / annualRent
	return &ratio
}

// RentalYield computes gross rental yield, the inverse perspective of
// price-to-rent. A price at or below zero is out of domain.
func RentalYield(price, annualRent float64) *float64 {
	if price <= 0 {
		return nil
	}
	yield := annualRent / price
	return &yield
}

// PricePerArea computes price per built square meter. Non-positive area is
// out of domain.
func PricePerArea(price, area float64) *float64 {
	if area <= 0 {
		return nil
	}
	perArea := price / area
	return &perArea
}

// DefaultRegistry returns the canonical real-estate index catalog, version 1
// of each.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()

	if err := r.Register("price_to_rent", 1, func(rec domain.Record) *float64 {
		price, ok := rec.NumberField("price")
		if !ok {
			return nil
		}
		rent, ok := rec.NumberField("annual_rent")
		if !ok {
			return nil
		}
		return PriceToRent(price, rent)
	}, []string{"price", "annual_rent"}); err != nil {
		return nil, err
	}

	if err := r.Register("rental_yield", 1, func(rec domain.Record) *float64 {
		price, ok := rec.NumberField("price")
		if !ok {
			return nil
		}
		rent, ok := rec.NumberField("annual_rent")
		if !ok {
			return nil
		}
		return RentalYield(price, rent)
	}, []string{"price", "annual_rent"}); err != nil {
		return nil, err
	}

	if err := r.Register("price_per_sqm", 1, func(rec domain.Record) *float64 {
		price, ok := rec.NumberField("price")
		if !ok {
			return nil
		}
		area, ok := rec.NumberField("area_sqm")
		if !ok {
			return nil
		}
		return PricePerArea(price, area)
	}, []string{"price", "area_sqm"}); err != nil {
		return nil, err
	}

	return r, nil
}
