package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/covidtrack/apiserver/types"
)

const observationColumns = `id, date, country, region, total_cases, total_deaths, total_recovered,
		new_cases, new_deaths, population, mortality_rate, source, last_updated, metadata`

// ObservationRepository handles persistence for observations. Lookups by
// country and by date are served by the indexes created in the migrations.
type ObservationRepository struct {
	db *sql.DB
}

func NewObservationRepository(db *sql.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// List returns every observation, newest date first. Rows sharing a date keep
// insertion order.
func (r *ObservationRepository) List(ctx context.Context) ([]types.Observation, error) {
	const query = `
		SELECT ` + observationColumns + `
		FROM observations
		ORDER BY date DESC, seq ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanObservations(rows)
}

// ListByCountry returns the observations of one country, newest date first.
func (r *ObservationRepository) ListByCountry(ctx context.Context, country string) ([]types.Observation, error) {
	const query = `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE country = $1
		ORDER BY date DESC, seq ASC`
	rows, err := r.db.QueryContext(ctx, query, country)
	if err != nil {
		return nil, err
	}
	return scanObservations(rows)
}

func (r *ObservationRepository) Create(ctx context.Context, obs types.Observation) (types.Observation, error) {
	metadataJSON, err := marshalMetadata(obs.Metadata)
	if err != nil {
		return types.Observation{}, err
	}

	const query = `
		INSERT INTO observations (id, date, country, region, total_cases, total_deaths, total_recovered,
			new_cases, new_deaths, population, mortality_rate, source, last_updated, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		obs.ID,
		obs.Date,
		obs.Country,
		obs.Region,
		obs.TotalCases,
		obs.TotalDeaths,
		obs.TotalRecovered,
		obs.NewCases,
		obs.NewDeaths,
		obs.Population,
		obs.MortalityRate,
		obs.Source,
		obs.LastUpdated,
		metadataJSON,
	); err != nil {
		return types.Observation{}, err
	}
	return obs, nil
}

// Replace overwrites every stored field of the observation with the given id.
func (r *ObservationRepository) Replace(ctx context.Context, id string, obs types.Observation) (types.Observation, error) {
	metadataJSON, err := marshalMetadata(obs.Metadata)
	if err != nil {
		return types.Observation{}, err
	}

	const query = `
		UPDATE observations
		SET date = $1,
			country = $2,
			region = $3,
			total_cases = $4,
			total_deaths = $5,
			total_recovered = $6,
			new_cases = $7,
			new_deaths = $8,
			population = $9,
			mortality_rate = $10,
			source = $11,
			last_updated = $12,
			metadata = $13
		WHERE id = $14`
	result, err := r.db.ExecContext(
		ctx,
		query,
		obs.Date,
		obs.Country,
		obs.Region,
		obs.TotalCases,
		obs.TotalDeaths,
		obs.TotalRecovered,
		obs.NewCases,
		obs.NewDeaths,
		obs.Population,
		obs.MortalityRate,
		obs.Source,
		obs.LastUpdated,
		metadataJSON,
		id,
	)
	if err != nil {
		return types.Observation{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Observation{}, err
	}
	if affected == 0 {
		return types.Observation{}, ErrNotFound
	}

	obs.ID = id
	return obs, nil
}

func (r *ObservationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM observations WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanObservations(rows *sql.Rows) ([]types.Observation, error) {
	defer rows.Close()

	observations := make([]types.Observation, 0)
	for rows.Next() {
		var obs types.Observation
		var metadataJSON []byte
		if err := rows.Scan(
			&obs.ID,
			&obs.Date,
			&obs.Country,
			&obs.Region,
			&obs.TotalCases,
			&obs.TotalDeaths,
			&obs.TotalRecovered,
			&obs.NewCases,
			&obs.NewDeaths,
			&obs.Population,
			&obs.MortalityRate,
			&obs.Source,
			&obs.LastUpdated,
			&metadataJSON,
		); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &obs.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of observation %s: %w", obs.ID, err)
			}
		}
		obs.Date = obs.Date.UTC()
		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return observations, nil
}

// marshalMetadata returns nil for absent metadata so the column is NULL.
func marshalMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}
