package main

import (
	"time"

	"github.com/parcelflow-labs/parcelflow-go/internal/index"
	"github.com/parcelflow-labs/parcelflow-go/internal/rules"
	"github.com/parcelflow-labs/parcelflow-go/internal/transform"
)

// knownCities is the closed set of markets the listings pipelines accept.
var knownCities = []string{"tel aviv", "haifa", "jerusalem"}

func defaultStepCatalog() (*transform.Catalog, error) {
	catalog := transform.NewCatalog()
	for _, step := range []transform.Step{
		transform.TrimStrings("trim_strings"),
		transform.NormalizeCity("normalize_city", "city"),
		transform.CoerceNumber("coerce_price", "price"),
		transform.CoerceNumber("coerce_monthly_rent", "monthly_rent"),
		transform.AnnualizeRent("annualize_rent", "monthly_rent", "annual_rent"),
		transform.DropMissing("drop_missing_price", "price"),
	} {
		if err := catalog.Register(step); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func defaultRuleCatalog() (*rules.Catalog, error) {
	catalog := rules.NewCatalog()
	for _, rule := range []rules.Rule{
		rules.RequiredFields("price_present", "price"),
		rules.NonNegativeNumber("price_non_negative", "price"),
		rules.NonNegativeNumber("rent_non_negative", "monthly_rent"),
		rules.StringIn("city_known", "city", knownCities...),
		rules.TimestampNotInFuture("listed_at_not_future", "listed_at", func() time.Time { return time.Now().UTC() }),
	} {
		if err := catalog.Register(rule); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func defaultIndexRegistry() (*index.Registry, error) {
	return index.DefaultRegistry()
}
