package services

import (
	"sort"

	"github.com/covidtrack/apiserver/types"
)

// SummarizeByCountry groups observations by country. Case and death totals
// are summed row by row and the mortality rate is averaged over the rows.
// The result is sorted by country and is never nil.
func SummarizeByCountry(observations []types.Observation) []types.CountryStats {
	type accumulator struct {
		stats   types.CountryStats
		rateSum float64
		rows    int
	}

	groups := make(map[string]*accumulator)
	for _, obs := range observations {
		acc, ok := groups[obs.Country]
		if !ok {
			acc = &accumulator{stats: types.CountryStats{Country: obs.Country}}
			groups[obs.Country] = acc
		}
		acc.stats.TotalCases += obs.TotalCases
		acc.stats.TotalDeaths += obs.TotalDeaths
		acc.rateSum += obs.MortalityRate
		acc.rows++
	}

	summary := make([]types.CountryStats, 0, len(groups))
	for _, acc := range groups {
		acc.stats.AvgMortalityRate = acc.rateSum / float64(acc.rows)
		summary = append(summary, acc.stats)
	}
	sort.Slice(summary, func(i, j int) bool {
		return summary[i].Country < summary[j].Country
	})
	return summary
}

// BuildReport computes the global report over all observations.
func BuildReport(observations []types.Observation) types.Report {
	var report types.Report
	countries := make(map[string]struct{})
	for _, obs := range observations {
		report.TotalCases += obs.NewCases
		report.TotalDeaths += obs.NewDeaths
		report.TotalRecovered += obs.TotalRecovered
		countries[obs.Country] = struct{}{}
	}
	report.Countries = len(countries)
	return report
}
