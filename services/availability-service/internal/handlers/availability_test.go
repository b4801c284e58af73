package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/slotreflow/libs/metrics"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const scheduleID = "7b1d6f0e-3c1a-4a57-9d0e-2f5c6b8a9e01"

type fakeSource struct {
	slots       []model.TimeSlot
	bookings    []model.Booking
	services    map[string]model.Service
	slotsErr    error
	servicesErr error
	slotCalls   int
	onListSlots func()
}

func (f *fakeSource) ListSlots(context.Context, string, string) ([]model.TimeSlot, error) {
	f.slotCalls++
	if f.onListSlots != nil {
		f.onListSlots()
	}
	return f.slots, f.slotsErr
}

func (f *fakeSource) ListBookings(context.Context, string, string) ([]model.Booking, error) {
	return f.bookings, nil
}

func (f *fakeSource) ListServices(_ context.Context, ids []string) ([]model.Service, error) {
	if f.servicesErr != nil {
		return nil, f.servicesErr
	}
	var out []model.Service
	for _, id := range ids {
		if s, ok := f.services[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeCache keeps entries per day and variant and bumps a per-day generation
// on Invalidate, refusing writes made under an older one.
type fakeCache struct {
	entries     map[string][]byte
	generations map[string]int64
	invalidated []string
}

func (f *fakeCache) Get(_ context.Context, scheduleID, date, variant string) ([]byte, bool, error) {
	b, ok := f.entries[scheduleID+"|"+date+"|"+variant]
	return b, ok, nil
}

func (f *fakeCache) Generation(_ context.Context, scheduleID, date string) (int64, error) {
	return f.generations[scheduleID+"|"+date], nil
}

func (f *fakeCache) Set(_ context.Context, scheduleID, date, variant string, generation int64, payload []byte) (bool, error) {
	if f.generations[scheduleID+"|"+date] != generation {
		return false, nil
	}
	if f.entries == nil {
		f.entries = map[string][]byte{}
	}
	f.entries[scheduleID+"|"+date+"|"+variant] = payload
	return true, nil
}

func (f *fakeCache) Invalidate(_ context.Context, scheduleID, date string) error {
	day := scheduleID + "|" + date
	f.invalidated = append(f.invalidated, day)
	if f.generations == nil {
		f.generations = map[string]int64{}
	}
	f.generations[day]++
	for key := range f.entries {
		if strings.HasPrefix(key, day+"|") {
			delete(f.entries, key)
		}
	}
	return nil
}

func newSource() *fakeSource {
	return &fakeSource{
		slots: []model.TimeSlot{
			{ID: "s1", StartTime: "09:00:00", EndTime: "09:30:00", IsBooked: true},
			{ID: "s2", StartTime: "09:30:00", EndTime: "10:00:00"},
			{ID: "s3", StartTime: "10:00:00", EndTime: "10:30:00"},
			{ID: "s4", StartTime: "10:30:00", EndTime: "11:00:00", IsBooked: true},
		},
		bookings: []model.Booking{
			{ID: "b1", StartTime: "09:00:00", EndTime: "09:45:00", DurationMinutes: 45},
		},
		services: map[string]model.Service{
			"cut":   {ID: "cut", Name: "Haircut", DurationMinutes: 45},
			"shave": {ID: "shave", Name: "Shave", DurationMinutes: 30},
		},
	}
}

func newHandler(src Source, c Cache) (*AvailabilityHandler, *metrics.Metrics) {
	m := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAvailabilityHandler(src, c, logger, m), m
}

func getSlots(t *testing.T, h *AvailabilityHandler, query string) (*httptest.ResponseRecorder, []slotItem) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?"+query, nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var items []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, items
}

func TestSlots_ValidatesInput(t *testing.T) {
	h, _ := newHandler(newSource(), nil)
	tests := []struct {
		name  string
		query string
	}{
		{name: "missing schedule", query: "date=2026-01-28"},
		{name: "missing date", query: "schedule_id=" + scheduleID},
		{name: "bad schedule", query: "schedule_id=abc&date=2026-01-28"},
		{name: "bad date", query: "schedule_id=" + scheduleID + "&date=2026-13-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := getSlots(t, h, tt.query)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/slots", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSlots_ReflowsDay(t *testing.T) {
	h, m := newHandler(newSource(), nil)

	rec, items := getSlots(t, h, "schedule_id="+scheduleID+"&date=2026-01-28&service_ids=cut,shave")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(DegradedHeader) != "" {
		t.Fatal("unexpected degraded header")
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	want := slotItem{SlotID: "s3", StartTime: "10:00", EndTime: "10:30", DisplayTime: "10:00", Available: true, RemainingMinutes: 30, ServiceEndTime: "11:15"}
	if items[0] != want {
		t.Fatalf("got %+v want %+v", items[0], want)
	}
	if items[1].SlotID != "s4" || items[1].Available {
		t.Fatalf("booked slot must be listed unavailable: %+v", items[1])
	}
	if got := testutil.ToFloat64(m.ReflowRuns); got != 1 {
		t.Fatalf("expected 1 reflow run, got %v", got)
	}

	_, items = getSlots(t, h, "schedule_id="+scheduleID+"&date=2026-01-28&service_ids=cut,shave&only_available=true")
	if len(items) != 1 || items[0].SlotID != "s3" {
		t.Fatalf("expected only s3, got %+v", items)
	}
}

func TestSlots_DefaultMinimumWithoutServices(t *testing.T) {
	src := newSource()
	src.bookings = nil
	src.slots = append(src.slots, model.TimeSlot{ID: "s5", StartTime: "11:00:00", EndTime: "11:20:00"})
	h, _ := newHandler(src, nil)

	_, items := getSlots(t, h, "schedule_id="+scheduleID+"&date=2026-01-28")
	if len(items) != 4 {
		t.Fatalf("expected the 20 minute slot dropped, got %+v", items)
	}
	for _, it := range items {
		if it.ServiceEndTime != it.DisplayTime {
			t.Fatalf("no services selected, end must equal display: %+v", it)
		}
	}
}

func TestSlots_DegradesOnStorageFailure(t *testing.T) {
	src := newSource()
	src.slotsErr = errors.New("connection refused")
	c := &fakeCache{}
	h, m := newHandler(src, c)

	rec, items := getSlots(t, h, "schedule_id="+scheduleID+"&date=2026-01-28")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(DegradedHeader) != "true" {
		t.Fatal("expected degraded header")
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" || len(items) != 0 {
		t.Fatalf("expected empty list, got %q", rec.Body.String())
	}
	if len(c.entries) != 0 {
		t.Fatal("degraded result must not be cached")
	}
	if got := testutil.ToFloat64(m.DegradedLookups.WithLabelValues("slots")); got != 1 {
		t.Fatalf("expected 1 degraded lookup, got %v", got)
	}
}

func TestSlots_DegradedServicesFallBackToDefault(t *testing.T) {
	src := newSource()
	src.servicesErr = errors.New("timeout")
	h, _ := newHandler(src, &fakeCache{})

	rec, items := getSlots(t, h, "schedule_id="+scheduleID+"&date=2026-01-28&service_ids=cut")
	if rec.Header().Get(DegradedHeader) != "true" {
		t.Fatal("expected degraded header")
	}
	if len(items) != 2 || items[0].SlotID != "s3" {
		t.Fatalf("expected default minimum applied, got %+v", items)
	}
}

func TestSlots_ServesFromCache(t *testing.T) {
	src := newSource()
	c := &fakeCache{}
	h, m := newHandler(src, c)
	query := "schedule_id=" + scheduleID + "&date=2026-01-28&service_ids=cut"

	_, first := getSlots(t, h, query)
	_, second := getSlots(t, h, query)
	if src.slotCalls != 1 {
		t.Fatalf("expected one storage read, got %d", src.slotCalls)
	}
	if len(first) != len(second) {
		t.Fatalf("cached response differs: %+v vs %+v", first, second)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Fatalf("expected 1 cache hit, got %v", got)
	}

	getSlots(t, h, "schedule_id="+scheduleID+"&date=2026-01-28&service_ids=shave")
	if src.slotCalls != 2 {
		t.Fatalf("a different service set must be computed, got %d reads", src.slotCalls)
	}
}

func TestSlots_DoesNotCacheDayInvalidatedDuringComputation(t *testing.T) {
	src := newSource()
	c := &fakeCache{}
	h, _ := newHandler(src, c)
	query := "schedule_id=" + scheduleID + "&date=2026-01-28&service_ids=cut"

	src.onListSlots = func() {
		if err := c.Invalidate(context.Background(), scheduleID, "2026-01-28"); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
	}
	rec, _ := getSlots(t, h, query)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(c.entries) != 0 {
		t.Fatalf("a day invalidated mid-computation must not be cached: %v", c.entries)
	}

	src.onListSlots = nil
	getSlots(t, h, query)
	getSlots(t, h, query)
	if src.slotCalls != 2 {
		t.Fatalf("expected the next request to recompute and cache, got %d reads", src.slotCalls)
	}
	if len(c.entries) != 1 {
		t.Fatalf("expected one cached variant, got %v", c.entries)
	}
}

func TestDuration(t *testing.T) {
	src := newSource()
	src.services["color"] = model.Service{ID: "color", DurationMinutes: 20}
	h, _ := newHandler(src, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/services/duration?service_ids=cut,color&start_time=09:00", nil)
	rec := httptest.NewRecorder()
	h.Duration(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp durationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp != (durationResponse{MinMinutes: 20, TotalMinutes: 65, EndTime: "10:05"}) {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.Duration(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/services/duration", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MinMinutes != 30 || resp.TotalMinutes != 0 || resp.EndTime != "" {
		t.Fatalf("unexpected empty-set response: %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.Duration(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/services/duration?start_time=nine", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestInvalidate(t *testing.T) {
	c := &fakeCache{}
	h, _ := newHandler(newSource(), c)

	body := `{"schedule_id":"` + scheduleID + `","date":"2026-01-28"}`
	rec := httptest.NewRecorder()
	h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/availability/invalidate", strings.NewReader(body)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(c.invalidated) != 1 || c.invalidated[0] != scheduleID+"|2026-01-28" {
		t.Fatalf("unexpected invalidations: %v", c.invalidated)
	}

	rec = httptest.NewRecorder()
	h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/availability/invalidate", strings.NewReader(`{"schedule_id":"x"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
