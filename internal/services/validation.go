package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/covidtrack/apiserver/types"
)

// ValidationKind classifies why an observation payload was rejected.
type ValidationKind string

const (
	MissingFields   ValidationKind = "missing_fields"
	InvalidNumeric  ValidationKind = "invalid_numeric"
	InvalidText     ValidationKind = "invalid_text"
	InvalidDate     ValidationKind = "invalid_date"
	InvalidMetadata ValidationKind = "invalid_metadata"
)

// ValidationError reports the first failing class of checks together with
// every offending field in that class.
type ValidationError struct {
	Kind   ValidationKind
	Fields []string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingFields:
		return "Missing required fields: " + strings.Join(e.Fields, ", ")
	case InvalidNumeric:
		return "Invalid numeric values for fields: " + strings.Join(e.Fields, ", ")
	case InvalidText:
		return "Invalid text values for fields: " + strings.Join(e.Fields, ", ")
	case InvalidDate:
		return "Invalid date format"
	case InvalidMetadata:
		return "Metadata must be an object"
	default:
		return "invalid observation"
	}
}

// Field names as they appear in request payloads.
const (
	fieldDate           = "date"
	fieldCountry        = "country"
	fieldRegion         = "region"
	fieldTotalCases     = "totalCases"
	fieldTotalDeaths    = "totalDeaths"
	fieldTotalRecovered = "totalRecovered"
	fieldNewCases       = "newCases"
	fieldNewDeaths      = "newDeaths"
	fieldPopulation     = "population"
	fieldSource         = "source"
	fieldMetadata       = "metadata"
)

var requiredFields = []string{
	fieldDate, fieldCountry, fieldRegion, fieldTotalCases, fieldTotalDeaths,
	fieldTotalRecovered, fieldNewCases, fieldNewDeaths, fieldPopulation, fieldSource,
}

var numericFields = []string{
	fieldTotalCases, fieldTotalDeaths, fieldTotalRecovered,
	fieldNewCases, fieldNewDeaths, fieldPopulation,
}

var textFields = []string{fieldCountry, fieldRegion, fieldSource}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
}

// ValidateObservation checks a raw payload and derives the mortality rate.
// Checks run in order (presence, numeric, text, date, metadata) and stop at
// the first class that fails. The result carries no ID or LastUpdated; those
// are assigned by the caller.
func ValidateObservation(raw map[string]any) (types.Observation, error) {
	var missing []string
	for _, field := range requiredFields {
		if !isPresent(raw[field]) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return types.Observation{}, &ValidationError{Kind: MissingFields, Fields: missing}
	}

	values := make(map[string]int64, len(numericFields))
	var invalid []string
	for _, field := range numericFields {
		value, ok := parseCount(raw[field])
		if !ok {
			invalid = append(invalid, field)
			continue
		}
		values[field] = value
	}
	if len(invalid) > 0 {
		return types.Observation{}, &ValidationError{Kind: InvalidNumeric, Fields: invalid}
	}

	texts := make(map[string]string, len(textFields))
	var nonText []string
	for _, field := range textFields {
		value, ok := raw[field].(string)
		if !ok {
			nonText = append(nonText, field)
			continue
		}
		texts[field] = strings.TrimSpace(value)
	}
	if len(nonText) > 0 {
		return types.Observation{}, &ValidationError{Kind: InvalidText, Fields: nonText}
	}

	date, ok := parseDate(raw[fieldDate])
	if !ok {
		return types.Observation{}, &ValidationError{Kind: InvalidDate, Fields: []string{fieldDate}}
	}

	var metadata map[string]any
	if rawMetadata, exists := raw[fieldMetadata]; exists && rawMetadata != nil {
		metadata, ok = rawMetadata.(map[string]any)
		if !ok {
			return types.Observation{}, &ValidationError{Kind: InvalidMetadata, Fields: []string{fieldMetadata}}
		}
	}

	obs := types.Observation{
		Date:           date,
		Country:        texts[fieldCountry],
		Region:         texts[fieldRegion],
		TotalCases:     values[fieldTotalCases],
		TotalDeaths:    values[fieldTotalDeaths],
		TotalRecovered: values[fieldTotalRecovered],
		NewCases:       values[fieldNewCases],
		NewDeaths:      values[fieldNewDeaths],
		Population:     values[fieldPopulation],
		Source:         texts[fieldSource],
		Metadata:       metadata,
	}
	obs.MortalityRate = types.ComputeMortalityRate(obs.TotalCases, obs.TotalDeaths)
	return obs, nil
}

func isPresent(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return true
	}
}

// parseCount accepts JSON numbers and numeric strings holding a finite,
// whole, non-negative value. Integer literals are parsed exactly; anything
// else ("1e3", "12.0") goes through float parsing.
func parseCount(value any) (int64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, n >= 0
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		return int64(v), v >= 0
	case int64:
		return v, v >= 0
	case string:
		trimmed := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n, n >= 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func parseDate(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
