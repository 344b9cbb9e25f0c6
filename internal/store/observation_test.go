package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/covidtrack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var observationRowColumns = []string{
	"id", "date", "country", "region", "total_cases", "total_deaths", "total_recovered",
	"new_cases", "new_deaths", "population", "mortality_rate", "source", "last_updated", "metadata",
}

func newObservationRepoWithMock(t *testing.T) (*ObservationRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewObservationRepository(db), mock, db
}

func sampleObservation() types.Observation {
	return types.Observation{
		ID:             "5b1c3f0e-8a4f-4d55-9a83-2f6a1d0b7e11",
		Date:           time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC),
		Country:        "Italy",
		Region:         "Lombardy",
		TotalCases:     200,
		TotalDeaths:    4,
		TotalRecovered: 150,
		NewCases:       10,
		NewDeaths:      1,
		Population:     10000000,
		MortalityRate:  2,
		Source:         "ministry",
		LastUpdated:    time.Date(2021, time.March, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestObservationList_OrdersByDateThenInsertion(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	march := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2021, time.March, 2, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(observationRowColumns).
		AddRow("id-1", march, "Italy", "Lombardy", int64(200), int64(4), int64(150), int64(10), int64(1), int64(100), 2.0, "ministry", updated, []byte(`{"note":"x"}`)).
		AddRow("id-2", jan, "Spain", "Madrid", int64(0), int64(0), int64(0), int64(0), int64(0), int64(50), 0.0, "who", updated, nil)
	mock.ExpectQuery(`(?s)SELECT\s+id,\s*date.*FROM\s+observations\s+ORDER\s+BY\s+date\s+DESC,\s*seq\s+ASC`).
		WillReturnRows(rows)

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-1", got[0].ID)
	assert.Equal(t, map[string]any{"note": "x"}, got[0].Metadata)
	assert.Equal(t, "id-2", got[1].ID)
	assert.Nil(t, got[1].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationList_EmptyIsNotNil(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+observations`).WillReturnRows(sqlmock.NewRows(observationRowColumns))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestObservationListByCountry_FiltersOnCountry(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+observations\s+WHERE\s+country\s*=\s*\$1\s+ORDER\s+BY\s+date\s+DESC`).
		WithArgs("Italy").
		WillReturnRows(sqlmock.NewRows(observationRowColumns))

	_, err := repo.ListByCountry(context.Background(), "Italy")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationList_DBError(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+observations`).WillReturnError(errors.New("db down"))

	_, err := repo.List(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestObservationCreate_Success(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	obs := sampleObservation()
	obs.Metadata = map[string]any{"verified": true}

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+observations`).
		WithArgs(obs.ID, obs.Date, "Italy", "Lombardy", int64(200), int64(4), int64(150), int64(10), int64(1),
			int64(10000000), 2.0, "ministry", sqlmock.AnyArg(), `{"verified":true}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, obs, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationCreate_NilMetadataIsNull(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	obs := sampleObservation()
	mock.ExpectExec(`INSERT\s+INTO\s+observations`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.Create(context.Background(), obs)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationReplace_NotFound(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+observations\s+SET.*WHERE\s+id\s*=\s*\$14`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Replace(context.Background(), "missing", sampleObservation())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObservationReplace_SetsID(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+observations`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	obs := sampleObservation()
	obs.ID = ""
	got, err := repo.Replace(context.Background(), "id-9", obs)
	require.NoError(t, err)
	assert.Equal(t, "id-9", got.ID)
}

func TestObservationDelete(t *testing.T) {
	repo, mock, db := newObservationRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+observations\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+observations`).
		WithArgs("id-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "id-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "id-2"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
