package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/covidtrack/apiserver/internal/services"
	"github.com/covidtrack/apiserver/internal/store"
	"github.com/covidtrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("handler-test-secret")

type memoryUsers struct {
	mu    sync.Mutex
	users []types.User
	calls int
}

func (m *memoryUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = len(m.users) + 1
	m.users = append(m.users, user)
	return user, nil
}

type memoryObservations struct {
	mu      sync.Mutex
	rows    []types.Observation
	calls   int
	listErr error
}

func (m *memoryObservations) List(_ context.Context) ([]types.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(""), nil
}

func (m *memoryObservations) ListByCountry(_ context.Context, country string) ([]types.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.sorted(country), nil
}

func (m *memoryObservations) Create(_ context.Context, obs types.Observation) (types.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.rows = append(m.rows, obs)
	return obs, nil
}

func (m *memoryObservations) Replace(_ context.Context, id string, obs types.Observation) (types.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for i := range m.rows {
		if m.rows[i].ID == id {
			obs.ID = id
			m.rows[i] = obs
			return obs, nil
		}
	}
	return types.Observation{}, store.ErrNotFound
}

func (m *memoryObservations) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memoryObservations) sorted(country string) []types.Observation {
	out := []types.Observation{}
	for _, row := range m.rows {
		if country == "" || row.Country == country {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

type testAPI struct {
	router       http.Handler
	tokens       *services.TokenService
	users        *memoryUsers
	observations *memoryObservations
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := services.NewTokenService(testSecret, services.DefaultTokenTTL)
	userRepo := &memoryUsers{}
	users := services.NewUserService(userRepo, services.WithHashCost(bcrypt.MinCost))
	observations := &memoryObservations{}
	observationService := services.NewObservationService(observations, logger)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, users, tokens, logger)
	})
	router.Route("/api/data", func(r chi.Router) {
		ObservationRouter(r, observationService, logger, RequireAuth(tokens, logger))
	})

	return &testAPI{router: router, tokens: tokens, users: userRepo, observations: observations}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(authTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()

	rec := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Analyst",
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func observationBody(date, country string, cases, deaths int) map[string]any {
	return map[string]any{
		"date":           date,
		"country":        country,
		"region":         "Capital",
		"totalCases":     cases,
		"totalDeaths":    deaths,
		"totalRecovered": 10,
		"newCases":       5,
		"newDeaths":      1,
		"population":     1000000,
		"source":         "ministry",
	}
}

var errStorage = errors.New("connection refused")
