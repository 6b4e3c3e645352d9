package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookingdesk/internal/config"
	"bookingdesk/internal/flow"
	"bookingdesk/internal/metrics"
	"bookingdesk/internal/models"
	"bookingdesk/internal/repository"
	"bookingdesk/internal/service"
	"bookingdesk/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	adminKey   = "admin-key"
	adminExtra = "admin-extra"
)

type testAPI struct {
	ts           *httptest.Server
	availability *service.AvailabilityService
	bookings     *service.BookingService
}

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: adminKey, Extra: adminExtra, Name: "admin"},
				{Key: "reader", Extra: "reader-extra", Name: "reader", Permissions: []string{permReadBookings}},
			},
		},
	}
}

func newTestAPI(t *testing.T, cfg config.APIConfig) *testAPI {
	t.Helper()
	logger := zerolog.Nop()

	ds := store.NewMemoryStore(&logger)
	t.Cleanup(func() { _ = ds.Close() })

	availability := service.NewAvailabilityService(ds, &logger)
	bookings := service.NewBookingService(ds, availability, nil, false, &logger)
	catalog := service.NewCatalogService([]models.Service{
		{ID: "svc1", Name: "Cut", IsActive: true},
		{ID: "svc2", Name: "Color", IsActive: false},
	}, &logger)
	states := service.NewStateService(repository.NewMemoryStateRepository(time.Hour), &logger)
	slotTimes := []string{"09:00", "10:00", "11:00"}
	formFlow := flow.New(states, catalog, availability, bookings, flow.Config{
		SlotTimes:      slotTimes,
		MaxBookingDays: 3650,
	}, &logger)

	srv := NewHTTPServer(cfg, Dependencies{
		Availability: availability,
		Bookings:     bookings,
		Catalog:      catalog,
		Flow:         formFlow,
		SlotTimes:    slotTimes,
	}, &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testAPI{ts: ts, availability: availability, bookings: bookings}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, admin bool) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, reader)
	require.NoError(t, err)
	if admin {
		req.Header.Set("x-api-key", adminKey)
		req.Header.Set("x-api-extra", adminExtra)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// futureDate is a bookable day relative to the real clock the form uses.
func futureDate() string {
	return time.Now().AddDate(0, 0, 10).Format(models.DateLayout)
}

func validBookingRequest() createBookingRequest {
	return createBookingRequest{
		ServiceID:   "svc1",
		Date:        "2024-06-01",
		Time:        "10:00",
		ClientName:  "A",
		ClientEmail: "a@x.com",
		ClientPhone: "+1",
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestListServices(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodGet, "/api/v1/services", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Services []models.Service `json:"services"`
	}
	decodeJSON(t, resp, &body)
	require.Len(t, body.Services, 1)
	assert.Equal(t, "svc1", body.Services[0].ID)
}

func TestCreateBookingScenario(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodPost, "/api/v1/bookings", validBookingRequest(), false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]string
	decodeJSON(t, resp, &created)
	require.NotEmpty(t, created["id"])
	assert.Equal(t, models.StatusPending, created["status"])

	booking, err := api.bookings.GetBooking(context.Background(), created["id"])
	require.NoError(t, err)
	assert.Equal(t, "Cut", booking.ServiceName)

	resp = api.do(t, http.MethodGet, "/api/v1/availability/2024-06-01", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var day dateResponse
	decodeJSON(t, resp, &day)
	require.True(t, day.Exists)
	require.Len(t, day.Availability.Slots, 1)
	assert.Equal(t, models.TimeSlot{Time: "10:00", IsAvailable: false, BookedBy: "a@x.com"}, day.Availability.Slots[0])
}

// calendarDownStore accepts booking records but fails every calendar write.
type calendarDownStore struct {
	store.DocumentStore
}

func (s *calendarDownStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if collection == models.CollectionCalendar {
		return errors.New("calendar unavailable")
	}
	return s.DocumentStore.Set(ctx, collection, id, data, merge)
}

func TestCreateBookingReturnsOrphanID(t *testing.T) {
	logger := zerolog.Nop()
	ds := &calendarDownStore{DocumentStore: store.NewMemoryStore(&logger)}
	t.Cleanup(func() { _ = ds.Close() })

	availability := service.NewAvailabilityService(ds, &logger)
	bookings := service.NewBookingService(ds, availability, nil, false, &logger)
	srv := NewHTTPServer(testAPIConfig(), Dependencies{
		Availability: availability,
		Bookings:     bookings,
		Catalog:      service.NewCatalogService([]models.Service{{ID: "svc1", Name: "Cut", IsActive: true}}, &logger),
	}, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	api := &testAPI{ts: ts, availability: availability, bookings: bookings}

	resp := api.do(t, http.MethodPost, "/api/v1/bookings", validBookingRequest(), false)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	require.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["error"])

	booking, err := bookings.GetBooking(context.Background(), body["id"])
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, booking.Status)
}

func TestCreateBookingValidation(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	req := validBookingRequest()
	req.ClientPhone = ""
	resp := api.do(t, http.MethodPost, "/api/v1/bookings", req, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req = validBookingRequest()
	req.ServiceID = "svc2"
	resp = api.do(t, http.MethodPost, "/api/v1/bookings", req, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{"unknown": true}, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDateMissing(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodGet, "/api/v1/availability/2024-06-01", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var day dateResponse
	decodeJSON(t, resp, &day)
	assert.False(t, day.Exists)
	assert.Nil(t, day.Availability)
}

func TestSetDateAndRange(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodPut, "/api/v1/availability/2024-06-01", map[string]any{
		"slots": []models.TimeSlot{{Time: "09:00", IsAvailable: true}},
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodPut, "/api/v1/availability/2024-06-01", map[string]any{"isAvailable": false}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var day dateResponse
	decodeJSON(t, resp, &day)
	require.True(t, day.Exists)
	assert.False(t, day.Availability.IsAvailable)
	assert.Len(t, day.Availability.Slots, 1)

	resp = api.do(t, http.MethodGet, "/api/v1/availability?start=2024-06-01&end=2024-06-30", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rangeBody struct {
		Dates []models.AvailabilityDate `json:"dates"`
	}
	decodeJSON(t, resp, &rangeBody)
	require.Len(t, rangeBody.Dates, 1)
	assert.Equal(t, "2024-06-01", rangeBody.Dates[0].Date)

	resp = api.do(t, http.MethodGet, "/api/v1/availability?start=2024-06-30&end=2024-06-01", nil, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/v1/availability?start=2024-06-01", nil, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetDateRequiresBody(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodPut, "/api/v1/availability/2024-06-01", map[string]any{}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchAvailability(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodPost, "/api/v1/availability/batch", map[string]any{
		"dates":       []string{"2024-06-01", "2024-06-02"},
		"isAvailable": false,
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, date := range []string{"2024-06-01", "2024-06-02"} {
		day, err := api.availability.GetDateAvailability(context.Background(), date)
		require.NoError(t, err)
		require.NotNil(t, day)
		assert.False(t, day.IsAvailable)
	}

	resp = api.do(t, http.MethodPost, "/api/v1/availability/batch", map[string]any{"dates": []string{"2024-06-01"}}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDaySlots(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())
	require.NoError(t, api.bookings.BookTimeSlot(context.Background(), "2024-06-01", "10:00", "a@x.com"))

	resp := api.do(t, http.MethodGet, "/api/v1/availability/2024-06-01/slots", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Slots []models.TimeSlot `json:"slots"`
	}
	decodeJSON(t, resp, &body)
	require.Len(t, body.Slots, 3)
	assert.True(t, body.Slots[0].IsAvailable)
	assert.False(t, body.Slots[1].IsAvailable)
}

func TestBookingsAdmin(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())
	ctx := context.Background()

	id, err := api.bookings.CreateBooking(ctx, &models.Booking{
		ServiceID: "svc1", ServiceName: "Cut", Date: "2024-06-01", Time: "10:00",
		ClientName: "A", ClientEmail: "a@x.com", ClientPhone: "+1",
	})
	require.NoError(t, err)

	resp := api.do(t, http.MethodGet, "/api/v1/bookings", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Bookings []models.Booking `json:"bookings"`
	}
	decodeJSON(t, resp, &list)
	require.Len(t, list.Bookings, 1)
	assert.Equal(t, id, list.Bookings[0].ID)

	resp = api.do(t, http.MethodGet, "/api/v1/bookings?status=confirmed", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &list)
	assert.Empty(t, list.Bookings)

	resp = api.do(t, http.MethodGet, "/api/v1/bookings/"+id, nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodPatch, "/api/v1/bookings/"+id+"/status", statusRequest{Status: models.StatusConfirmed}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Booking
	decodeJSON(t, resp, &updated)
	assert.Equal(t, models.StatusConfirmed, updated.Status)

	resp = api.do(t, http.MethodPatch, "/api/v1/bookings/"+id+"/status", statusRequest{Status: "archived"}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPatch, "/api/v1/bookings/missing/status", statusRequest{Status: models.StatusCancelled}, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/v1/bookings/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportBookings(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodPost, "/api/v1/bookings", validBookingRequest(), false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/v1/bookings/export", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a@x.com", rows[2][5])
}

func TestFormFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodPost, "/api/v1/forms", nil, false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var state models.FormState
	decodeJSON(t, resp, &state)
	require.NotEmpty(t, state.SessionID)
	base := "/api/v1/forms/" + state.SessionID

	resp = api.do(t, http.MethodPost, base+"/date", formValue{Date: futureDate()}, false)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	steps := []struct {
		path string
		body any
		want string
	}{
		{path: "/service", body: formValue{ServiceID: "svc1"}, want: models.StepSelectDate},
		{path: "/date", body: formValue{Date: futureDate()}, want: models.StepSelectTime},
		{path: "/time", body: formValue{Time: "10:00"}, want: models.StepContact},
		{path: "/contact", body: flow.Contact{Name: "A", Email: "a@x.com", Phone: "+1"}, want: models.StepConfirm},
		{path: "/submit", body: nil, want: models.StepDone},
	}
	for _, step := range steps {
		resp = api.do(t, http.MethodPost, base+step.path, step.body, false)
		require.Equal(t, http.StatusOK, resp.StatusCode, step.path)
		decodeJSON(t, resp, &state)
		require.Equal(t, step.want, state.Step, step.path)
	}
	assert.NotEmpty(t, state.BookingID)

	resp = api.do(t, http.MethodGet, base, nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodDelete, base, nil, false)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.do(t, http.MethodGet, base, nil, false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFormTimes(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())
	require.NoError(t, api.bookings.BookTimeSlot(context.Background(), futureDate(), "09:00", "b@x.com"))

	resp := api.do(t, http.MethodPost, "/api/v1/forms", nil, false)
	var state models.FormState
	decodeJSON(t, resp, &state)
	base := "/api/v1/forms/" + state.SessionID

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, base+"/service", formValue{ServiceID: "svc1"}, false).StatusCode)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, base+"/date", formValue{Date: futureDate()}, false).StatusCode)

	resp = api.do(t, http.MethodGet, base+"/times", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Slots []models.TimeSlot `json:"slots"`
	}
	decodeJSON(t, resp, &body)
	require.Len(t, body.Slots, 3)
	assert.False(t, body.Slots[0].IsAvailable)

	resp = api.do(t, http.MethodPost, base+"/time", formValue{Time: "09:00"}, false)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.do(t, http.MethodPost, base+"/back", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &state)
	assert.Equal(t, models.StepSelectDate, state.Step)
}

func readEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return event, data
		}
	}
}

func TestAvailabilityStream(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		api.ts.URL+"/api/v1/availability/stream?start=2024-06-01&end=2024-06-30", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	assert.Equal(t, "availability", event)
	assert.JSONEq(t, `{"dates":[]}`, data)

	require.NoError(t, api.bookings.BookTimeSlot(context.Background(), "2024-06-05", "10:00", "a@x.com"))

	_, data = readEvent(t, reader)
	var body struct {
		Dates []models.AvailabilityDate `json:"dates"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &body))
	require.Len(t, body.Dates, 1)
	assert.Equal(t, "2024-06-05", body.Dates[0].Date)
}

func TestBookingsStreamRequiresAuth(t *testing.T) {
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodGet, "/api/v1/bookings/stream", nil, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	api := newTestAPI(t, cfg)

	resp := api.do(t, http.MethodGet, "/api/v1/services", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/v1/services", nil, false)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// health checks are not rate limited
	resp = api.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestMetrics(t *testing.T) {
	metrics.Register()
	api := newTestAPI(t, testAPIConfig())

	resp := api.do(t, http.MethodGet, "/api/v1/availability/2024-06-01", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `endpoint="/api/v1/availability/{date:[0-9]{4}-[0-9]{2}-[0-9]{2}}"`)
}
