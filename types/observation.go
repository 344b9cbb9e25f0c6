package types

import "time"

// Observation is one epidemiological record for a country/region on a day.
// The mortality rate is derived from the case and death totals and is never
// taken from client input.
type Observation struct {
	// ID is the unique identifier of the observation.
	ID string `json:"id" db:"id"`

	// Date is the calendar day the observation describes, at UTC midnight.
	Date time.Time `json:"date" db:"date"`

	// Country is the country the observation was recorded for.
	Country string `json:"country" db:"country"`

	// Region is the region within the country.
	Region string `json:"region" db:"region"`

	// TotalCases is the cumulative number of confirmed cases.
	TotalCases int64 `json:"totalCases" db:"total_cases"`

	// TotalDeaths is the cumulative number of deaths.
	TotalDeaths int64 `json:"totalDeaths" db:"total_deaths"`

	// TotalRecovered is the cumulative number of recoveries.
	TotalRecovered int64 `json:"totalRecovered" db:"total_recovered"`

	// NewCases is the number of cases reported on this day.
	NewCases int64 `json:"newCases" db:"new_cases"`

	// NewDeaths is the number of deaths reported on this day.
	NewDeaths int64 `json:"newDeaths" db:"new_deaths"`

	// Population is the population of the region.
	Population int64 `json:"population" db:"population"`

	// MortalityRate is TotalDeaths / TotalCases * 100, or 0 when there
	// are no cases.
	MortalityRate float64 `json:"mortalityRate" db:"mortality_rate"`

	// Source names where the figures came from.
	Source string `json:"source" db:"source"`

	// LastUpdated is set by the server on every create and replace.
	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`

	// Metadata is an open key/value bag supplied by the client.
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`
}

// ComputeMortalityRate returns deaths as a percentage of cases.
func ComputeMortalityRate(totalCases, totalDeaths int64) float64 {
	if totalCases <= 0 {
		return 0
	}
	return float64(totalDeaths) / float64(totalCases) * 100
}

// ObservationEventType identifies a change to the observation set.
type ObservationEventType string

const (
	ObservationCreated  ObservationEventType = "observation.created"
	ObservationReplaced ObservationEventType = "observation.replaced"
	ObservationDeleted  ObservationEventType = "observation.deleted"
)

// ObservationEvent is published after a write to the observation set commits.
type ObservationEvent struct {
	Type       ObservationEventType `json:"type"`
	ID         string               `json:"id"`
	Country    string               `json:"country,omitempty"`
	Date       string               `json:"date,omitempty"`
	OccurredAt time.Time            `json:"occurredAt"`
}
