package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotreflow/libs/httpx"
	"github.com/md-rashed-zaman/slotreflow/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotreflow/libs/otel"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/clock"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/duration"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/reflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DegradedHeader = "X-Availability-Degraded"

// Source loads the inputs of one schedule day.
type Source interface {
	ListSlots(ctx context.Context, scheduleID, date string) ([]model.TimeSlot, error)
	ListBookings(ctx context.Context, scheduleID, date string) ([]model.Booking, error)
	ListServices(ctx context.Context, serviceIDs []string) ([]model.Service, error)
}

// Cache stores computed days. Set must refuse a payload whose generation is
// older than the day's current one.
type Cache interface {
	Get(ctx context.Context, scheduleID, date, variant string) ([]byte, bool, error)
	Generation(ctx context.Context, scheduleID, date string) (int64, error)
	Set(ctx context.Context, scheduleID, date, variant string, generation int64, payload []byte) (bool, error)
	Invalidate(ctx context.Context, scheduleID, date string) error
}

type AvailabilityHandler struct {
	source  Source
	cache   Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAvailabilityHandler builds the handler. c may be nil, in which case
// every request is computed.
func NewAvailabilityHandler(source Source, c Cache, logger *slog.Logger, m *metrics.Metrics) *AvailabilityHandler {
	return &AvailabilityHandler{source: source, cache: c, logger: logger, metrics: m}
}

type slotItem struct {
	SlotID           string `json:"slot_id"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	DisplayTime      string `json:"display_time"`
	Available        bool   `json:"available"`
	RemainingMinutes int    `json:"remaining_minutes"`
	ServiceEndTime   string `json:"service_end_time"`
}

type durationResponse struct {
	MinMinutes   int    `json:"min_minutes"`
	TotalMinutes int    `json:"total_minutes"`
	EndTime      string `json:"end_time,omitempty"`
}

type invalidateRequest struct {
	ScheduleID string `json:"schedule_id"`
	Date       string `json:"date"`
}

func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	scheduleID := strings.TrimSpace(q.Get("schedule_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if scheduleID == "" || dateStr == "" {
		http.Error(w, "schedule_id and date are required", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(scheduleID); err != nil {
		http.Error(w, "invalid schedule_id", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(time.DateOnly, dateStr); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	onlyAvailable := q.Get("only_available") == "true"

	ctx, span := otelx.Tracer("availability").Start(r.Context(), "availability.slots")
	defer span.End()
	span.SetAttributes(attribute.String("schedule.id", scheduleID), attribute.String("schedule.date", dateStr))

	log := h.logger.With("request_id", httpx.RequestIDFromContext(ctx), "schedule_id", scheduleID, "date", dateStr)

	degraded := false
	services, err := h.source.ListServices(ctx, splitIDs(q.Get("service_ids")))
	if err != nil {
		log.Error("failed to load services", "err", err)
		h.degrade(span, "services", err)
		degraded = true
		services = nil
	}
	minMinutes := duration.MinService(services)
	totalMinutes := duration.Total(services)
	variant := cache.Variant(minMinutes, totalMinutes)

	var items []slotItem
	cached := false
	if h.cache != nil && !degraded {
		body, ok, err := h.cache.Get(ctx, scheduleID, dateStr, variant)
		switch {
		case err != nil:
			log.Warn("availability cache read failed", "err", err)
			h.metrics.CacheLookups.WithLabelValues("error").Inc()
		case ok:
			if err := json.Unmarshal(body, &items); err == nil {
				cached = true
				h.metrics.CacheLookups.WithLabelValues("hit").Inc()
			} else {
				log.Warn("discarding unreadable cache entry", "err", err)
				h.metrics.CacheLookups.WithLabelValues("error").Inc()
			}
		default:
			h.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	if !cached {
		// The generation is read before the day is loaded so an invalidation
		// racing the computation voids the write.
		cacheable := h.cache != nil && !degraded
		var generation int64
		if cacheable {
			var err error
			if generation, err = h.cache.Generation(ctx, scheduleID, dateStr); err != nil {
				log.Warn("availability cache generation read failed", "err", err)
				cacheable = false
			}
		}

		var dayDegraded bool
		items, dayDegraded = h.compute(ctx, log, scheduleID, dateStr, minMinutes, totalMinutes)
		degraded = degraded || dayDegraded
		if cacheable && !degraded {
			if body, err := json.Marshal(items); err == nil {
				stored, err := h.cache.Set(ctx, scheduleID, dateStr, variant, generation, body)
				switch {
				case err != nil:
					log.Warn("availability cache write failed", "err", err)
				case !stored:
					log.Debug("availability cache write skipped; day invalidated during computation")
				}
			}
		}
	}

	if onlyAvailable {
		filtered := items[:0:0]
		for _, it := range items {
			if it.Available {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []slotItem{}
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// compute loads and reflows one day. A failed lookup is replaced by an empty
// set and reported as degraded.
func (h *AvailabilityHandler) compute(ctx context.Context, log *slog.Logger, scheduleID, date string, minMinutes, totalMinutes int) ([]slotItem, bool) {
	ctx, span := otelx.Tracer("availability").Start(ctx, "availability.reflow")
	defer span.End()

	started := time.Now()
	degraded := false

	slots, err := h.source.ListSlots(ctx, scheduleID, date)
	if err != nil {
		log.Error("failed to load slots", "err", err)
		h.degrade(span, "slots", err)
		degraded = true
		slots = nil
	}
	bookings, err := h.source.ListBookings(ctx, scheduleID, date)
	if err != nil {
		log.Error("failed to load bookings", "err", err)
		h.degrade(span, "bookings", err)
		degraded = true
		bookings = nil
	}

	retained := reflow.Reflow(slots, bookings, minMinutes)
	sum := reflow.Summarize(retained)
	h.metrics.ObserveReflow(len(slots), sum.Retained, sum.Available, time.Since(started).Seconds())
	span.SetAttributes(
		attribute.Int("slots.evaluated", len(slots)),
		attribute.Int("slots.retained", sum.Retained),
		attribute.Int("slots.available", sum.Available),
		attribute.Int("service.min_minutes", minMinutes),
	)
	log.Debug("availability computed", "slots", len(slots), "bookings", len(bookings), "retained", sum.Retained, "available", sum.Available)

	items := make([]slotItem, 0, len(retained))
	for _, s := range retained {
		items = append(items, slotItem{
			SlotID:           s.ID,
			StartTime:        clock.Normalize(s.StartTime),
			EndTime:          clock.Normalize(s.EndTime),
			DisplayTime:      s.DisplayTime,
			Available:        s.Available,
			RemainingMinutes: s.Remaining,
			ServiceEndTime:   duration.EndTime(s.DisplayTime, totalMinutes),
		})
	}
	return items, degraded
}

func (h *AvailabilityHandler) degrade(span trace.Span, source string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, source+" lookup failed")
	h.metrics.DegradedLookups.WithLabelValues(source).Inc()
}

func (h *AvailabilityHandler) Duration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	services, err := h.source.ListServices(r.Context(), splitIDs(q.Get("service_ids")))
	if err != nil {
		h.logger.Error("failed to load services", "err", err)
		http.Error(w, "failed to load services", http.StatusInternalServerError)
		return
	}

	resp := durationResponse{
		MinMinutes:   duration.MinService(services),
		TotalMinutes: duration.Total(services),
	}
	if start := strings.TrimSpace(q.Get("start_time")); start != "" {
		if _, err := time.Parse("15:04", clock.Normalize(start)); err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		resp.EndTime = duration.EndTime(start, resp.TotalMinutes)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *AvailabilityHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ScheduleID = strings.TrimSpace(req.ScheduleID)
	req.Date = strings.TrimSpace(req.Date)
	if _, err := uuid.Parse(req.ScheduleID); err != nil {
		http.Error(w, "invalid schedule_id", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), req.ScheduleID, req.Date); err != nil {
			h.logger.Error("availability invalidate failed", "err", err, "schedule_id", req.ScheduleID, "date", req.Date)
			http.Error(w, "failed to invalidate", http.StatusBadGateway)
			return
		}
	}
	h.logger.Info("availability invalidated", "schedule_id", req.ScheduleID, "date", req.Date)
	w.WriteHeader(http.StatusNoContent)
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
