package production

import (
	"encoding/json"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/shopspring/decimal"
)

var (
	minTemperature = decimal.NewFromInt(-100)
	maxTemperature = decimal.NewFromInt(200)
	maxHumidity    = decimal.NewFromInt(100)
)

// Validate checks the reading ranges; both columns are numeric(5,2).
func (r Readings) Validate() error {
	if t := r.Temperature; t != nil {
		if t.LessThan(minTemperature) || t.GreaterThan(maxTemperature) {
			return apperr.Validation("temperature must be between -100 and 200")
		}
	}
	if h := r.Humidity; h != nil {
		if h.IsNegative() || h.GreaterThan(maxHumidity) {
			return apperr.Validation("humidity must be between 0 and 100")
		}
	}
	if len(r.QualityMetrics) > 0 && !json.Valid(r.QualityMetrics) {
		return apperr.Validation("quality_metrics must be valid JSON")
	}
	return nil
}

// Apply copies the provided readings onto rec, rounded to the column scale.
func (r Readings) Apply(rec *Record) {
	if r.Temperature != nil {
		t := r.Temperature.Round(2)
		rec.Temperature = &t
	}
	if r.Humidity != nil {
		h := r.Humidity.Round(2)
		rec.Humidity = &h
	}
	if r.Notes != nil {
		rec.Notes = *r.Notes
	}
	if len(r.QualityMetrics) > 0 {
		rec.QualityMetrics = r.QualityMetrics
	}
}
