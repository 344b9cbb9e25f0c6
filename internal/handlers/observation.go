package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/covidtrack/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// ObservationHandler provides HTTP handlers for observations and their
// aggregates.
type ObservationHandler struct {
	service *services.ObservationService
	logger  *slog.Logger
}

// NewObservationHandler constructs a handler backed by the given service.
func NewObservationHandler(service *services.ObservationService, logger *slog.Logger) *ObservationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservationHandler{service: service, logger: logger}
}

// ObservationRouter registers observation routes on the given router. Every
// route sits behind authMiddleware when one is supplied.
func ObservationRouter(
	r chi.Router,
	service *services.ObservationService,
	logger *slog.Logger,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewObservationHandler(service, logger)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}
	r.Get("/", handler.ListObservations)
	r.Post("/", handler.CreateObservation)
	r.Get("/stats", handler.Stats)
	r.Get("/report", handler.Report)
	r.Get("/country/{country}", handler.ListByCountry)
	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", handler.ReplaceObservation)
		r.Delete("/", handler.DeleteObservation)
	})
}

func (h *ObservationHandler) ListObservations(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list observations", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ObservationHandler) ListByCountry(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(chi.URLParam(r, "country"))
	items, err := h.service.ListByCountry(r.Context(), country)
	if err != nil {
		writeServiceError(w, h.logger, "list observations by country", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ObservationHandler) CreateObservation(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.service.Create(r.Context(), raw)
	if err != nil {
		writeServiceError(w, h.logger, "create observation", err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (h *ObservationHandler) ReplaceObservation(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	replaced, err := h.service.Replace(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		writeServiceError(w, h.logger, "replace observation", err)
		return
	}
	writeJSON(w, http.StatusOK, replaced)
}

func (h *ObservationHandler) DeleteObservation(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, "delete observation", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Data removed"})
}

// Stats returns per-country totals and average mortality rate.
func (h *ObservationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.SummaryByCountry(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "summarise observations", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Report returns global totals across every stored observation.
func (h *ObservationHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Report(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "build report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
