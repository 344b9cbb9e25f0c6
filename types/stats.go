package types

// CountryStats is the per-country rollup over every stored observation.
// TotalCases and TotalDeaths are sums of the cumulative fields of each row,
// not the latest snapshot per country.
type CountryStats struct {
	// Country is the grouping key.
	Country string `json:"country"`

	// TotalCases is the sum of TotalCases across the country's observations.
	TotalCases int64 `json:"totalCases"`

	// TotalDeaths is the sum of TotalDeaths across the country's observations.
	TotalDeaths int64 `json:"totalDeaths"`

	// AvgMortalityRate is the mean of the stored mortality rates.
	AvgMortalityRate float64 `json:"avgMortalityRate"`
}

// Report is the global summary shown on the reports page.
type Report struct {
	// TotalCases is the sum of NewCases over all observations.
	TotalCases int64 `json:"totalCases"`

	// TotalDeaths is the sum of NewDeaths over all observations.
	TotalDeaths int64 `json:"totalDeaths"`

	// TotalRecovered is the sum of TotalRecovered over all observations.
	TotalRecovered int64 `json:"totalRecovered"`

	// Countries is the number of distinct countries observed.
	Countries int `json:"countries"`
}
