package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/covidtrack/apiserver/types"
)

const exportPrefix = "exports"

var exportHeader = []string{
	"id", "date", "country", "region", "totalCases", "totalDeaths", "totalRecovered",
	"newCases", "newDeaths", "population", "mortalityRate", "source", "lastUpdated",
}

// ObjectWriter uploads objects to a bucket.
type ObjectWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// ExportResult lists the objects written by an export run.
type ExportResult struct {
	ObservationsKey string
	StatsKey        string
	Rows            int
}

// ExportService writes snapshots of the observation set to object storage.
type ExportService struct {
	repo   ObservationRepository
	writer ObjectWriter
}

func NewExportService(repo ObservationRepository, writer ObjectWriter) *ExportService {
	return &ExportService{repo: repo, writer: writer}
}

// Export uploads every observation as CSV and the per-country rollup as JSON
// under exports/<timestamp>/.
func (s *ExportService) Export(ctx context.Context, at time.Time) (ExportResult, error) {
	observations, err := s.repo.List(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("load observations: %w", err)
	}

	csvData, err := encodeObservationsCSV(observations)
	if err != nil {
		return ExportResult{}, err
	}
	statsData, err := json.MarshalIndent(SummarizeByCountry(observations), "", "  ")
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode stats: %w", err)
	}

	dir := path.Join(exportPrefix, at.UTC().Format("20060102T150405Z"))
	result := ExportResult{
		ObservationsKey: path.Join(dir, "observations.csv"),
		StatsKey:        path.Join(dir, "stats.json"),
		Rows:            len(observations),
	}

	if err := s.writer.Put(ctx, result.ObservationsKey, bytes.NewReader(csvData), int64(len(csvData)), "text/csv"); err != nil {
		return ExportResult{}, fmt.Errorf("upload %s: %w", result.ObservationsKey, err)
	}
	if err := s.writer.Put(ctx, result.StatsKey, bytes.NewReader(statsData), int64(len(statsData)), "application/json"); err != nil {
		return ExportResult{}, fmt.Errorf("upload %s: %w", result.StatsKey, err)
	}
	return result, nil
}

func encodeObservationsCSV(observations []types.Observation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, obs := range observations {
		record := []string{
			obs.ID,
			obs.Date.Format("2006-01-02"),
			obs.Country,
			obs.Region,
			strconv.FormatInt(obs.TotalCases, 10),
			strconv.FormatInt(obs.TotalDeaths, 10),
			strconv.FormatInt(obs.TotalRecovered, 10),
			strconv.FormatInt(obs.NewCases, 10),
			strconv.FormatInt(obs.NewDeaths, 10),
			strconv.FormatInt(obs.Population, 10),
			strconv.FormatFloat(obs.MortalityRate, 'f', -1, 64),
			obs.Source,
			obs.LastUpdated.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
