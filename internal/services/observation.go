package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/covidtrack/apiserver/internal/store"
	"github.com/covidtrack/apiserver/types"
	"github.com/google/uuid"
)

const (
	statsCacheKey   = "stats:by_country"
	statsVersionKey = "stats:version"
)

// ObservationRepository defines persistence operations for observations.
type ObservationRepository interface {
	List(ctx context.Context) ([]types.Observation, error)
	ListByCountry(ctx context.Context, country string) ([]types.Observation, error)
	Create(ctx context.Context, obs types.Observation) (types.Observation, error)
	Replace(ctx context.Context, id string, obs types.Observation) (types.Observation, error)
	Delete(ctx context.Context, id string) error
}

// StatsCache stores serialised aggregation results and the counter that
// versions them.
type StatsCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Incr(ctx context.Context, key string) (int64, error)
}

// EventPublisher delivers change events to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ObservationService encapsulates observation use-cases. Every create and
// replace goes through ValidateObservation, so the stored mortality rate is
// always derived from the stored totals.
type ObservationService struct {
	repo         ObservationRepository
	logger       *slog.Logger
	cache        StatsCache
	events       EventPublisher
	eventChannel string
	now          func() time.Time
	newID        func() string
}

// ObservationOption customises an ObservationService.
type ObservationOption func(*ObservationService)

// WithStatsCache caches SummaryByCountry results. Every write bumps the
// stats version, which retires entries computed before it.
func WithStatsCache(cache StatsCache) ObservationOption {
	return func(s *ObservationService) {
		s.cache = cache
	}
}

// WithEventPublisher publishes an ObservationEvent on channel after each write.
func WithEventPublisher(events EventPublisher, channel string) ObservationOption {
	return func(s *ObservationService) {
		s.events = events
		s.eventChannel = channel
	}
}

func NewObservationService(repo ObservationRepository, logger *slog.Logger, opts ...ObservationOption) *ObservationService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ObservationService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ObservationService) List(ctx context.Context) ([]types.Observation, error) {
	return s.repo.List(ctx)
}

func (s *ObservationService) ListByCountry(ctx context.Context, country string) ([]types.Observation, error) {
	return s.repo.ListByCountry(ctx, country)
}

// Create validates the payload, derives the mortality rate and stores it.
func (s *ObservationService) Create(ctx context.Context, raw map[string]any) (types.Observation, error) {
	obs, err := ValidateObservation(raw)
	if err != nil {
		return types.Observation{}, err
	}
	obs.ID = s.newID()
	obs.LastUpdated = s.now().UTC()

	created, err := s.repo.Create(ctx, obs)
	if err != nil {
		return types.Observation{}, fmt.Errorf("create observation: %w", err)
	}

	s.afterWrite(ctx, types.ObservationCreated, created)
	return created, nil
}

// Replace overwrites the observation with the given id with a freshly
// validated payload. Unknown or malformed ids yield store.ErrNotFound.
func (s *ObservationService) Replace(ctx context.Context, id string, raw map[string]any) (types.Observation, error) {
	id, ok := normalizeID(id)
	if !ok {
		return types.Observation{}, store.ErrNotFound
	}

	obs, err := ValidateObservation(raw)
	if err != nil {
		return types.Observation{}, err
	}
	obs.LastUpdated = s.now().UTC()

	replaced, err := s.repo.Replace(ctx, id, obs)
	if err != nil {
		return types.Observation{}, err
	}

	s.afterWrite(ctx, types.ObservationReplaced, replaced)
	return replaced, nil
}

func (s *ObservationService) Delete(ctx context.Context, id string) error {
	id, ok := normalizeID(id)
	if !ok {
		return store.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.afterWrite(ctx, types.ObservationDeleted, types.Observation{ID: id})
	return nil
}

// SummaryByCountry returns the per-country rollup, served from the cache
// when one is configured and holds a result for the current stats version.
func (s *ObservationService) SummaryByCountry(ctx context.Context) ([]types.CountryStats, error) {
	var key string
	if s.cache != nil {
		key = s.statsKey(ctx)
		if key != "" {
			if cached, ok := s.cachedSummary(ctx, key); ok {
				return cached, nil
			}
		}
	}

	observations, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	summary := SummarizeByCountry(observations)

	if key != "" {
		if data, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, key, data); err != nil {
				s.logger.Warn("stats cache write failed", "error", err)
			}
		}
	}
	return summary, nil
}

// Report returns the global report over all observations.
func (s *ObservationService) Report(ctx context.Context) (types.Report, error) {
	observations, err := s.repo.List(ctx)
	if err != nil {
		return types.Report{}, fmt.Errorf("load observations: %w", err)
	}
	return BuildReport(observations), nil
}

// statsKey names the cache entry for the stats version current before the
// store is read. A summary that races a write is stored under the retired
// version and never served. An empty key disables caching for the call.
func (s *ObservationService) statsKey(ctx context.Context) string {
	data, ok, err := s.cache.Get(ctx, statsVersionKey)
	if err != nil {
		s.logger.Warn("stats version read failed", "error", err)
		return ""
	}
	var version int64
	if ok {
		if version, err = strconv.ParseInt(string(data), 10, 64); err != nil {
			s.logger.Warn("stats version unreadable", "error", err)
			return ""
		}
	}
	return statsCacheKey + ":v" + strconv.FormatInt(version, 10)
}

func (s *ObservationService) cachedSummary(ctx context.Context, key string) ([]types.CountryStats, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("stats cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var summary []types.CountryStats
	if err := json.Unmarshal(data, &summary); err != nil {
		s.logger.Warn("stats cache entry unreadable", "error", err)
		return nil, false
	}
	if summary == nil {
		summary = []types.CountryStats{}
	}
	return summary, true
}

// afterWrite runs once a write has committed. Failures here are logged and
// do not fail the request.
func (s *ObservationService) afterWrite(ctx context.Context, eventType types.ObservationEventType, obs types.Observation) {
	if s.cache != nil {
		if _, err := s.cache.Incr(ctx, statsVersionKey); err != nil {
			s.logger.Warn("stats version bump failed", "error", err, "observation_id", obs.ID)
		}
	}

	if s.events == nil || s.eventChannel == "" {
		return
	}
	event := types.ObservationEvent{
		Type:       eventType,
		ID:         obs.ID,
		Country:    obs.Country,
		OccurredAt: s.now().UTC(),
	}
	if !obs.Date.IsZero() {
		event.Date = obs.Date.Format("2006-01-02")
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encode observation event", "error", err)
		return
	}
	if _, err := s.events.Publish(ctx, s.eventChannel, data, map[string]string{"type": string(eventType)}); err != nil {
		s.logger.Warn("observation event publish failed", "error", err, "type", eventType, "observation_id", obs.ID)
	}
}

func normalizeID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
