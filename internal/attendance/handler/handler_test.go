package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"presence/internal/attendance/engine"
	"presence/internal/attendance/service"
	"presence/internal/attendance/stats"
	"presence/internal/attendance/store"
	identitymodels "presence/internal/identity/models"
	"presence/internal/platform/middleware"
	"presence/internal/recognition"
	id "presence/pkg/domain"
	"presence/pkg/testutil"
)

// stubValidator maps bearer tokens to claims.
type stubValidator struct {
	tokens map[string]*middleware.JWTClaims
}

func (v *stubValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	claims, ok := v.tokens[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return claims, nil
}

// directory backed by a fixed principal list, matching the service contract.
type fixedDirectory struct {
	principals []*identitymodels.Principal
}

func (d *fixedDirectory) Get(_ context.Context, pid id.PrincipalID) (*identitymodels.Principal, error) {
	for _, p := range d.principals {
		if p.ID == pid {
			return p, nil
		}
	}
	return nil, errors.New("principal not found")
}

func (d *fixedDirectory) List(_ context.Context) ([]*identitymodels.Principal, error) {
	return d.principals, nil
}

type fixture struct {
	router    chi.Router
	member    *identitymodels.Principal
	admin     *identitymodels.Principal
	validator *stubValidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	member := newPrincipal(t, "Alice Worker", "alice@example.com", "B-100", "engineering", identitymodels.RoleMember)
	admin := newPrincipal(t, "Olive Admin", "olive@example.com", "B-001", "operations", identitymodels.RoleAdministrator)

	directory := &fixedDirectory{principals: []*identitymodels.Principal{member, admin}}
	logger := slog.New(slog.DiscardHandler)

	svc := service.New(store.NewInMemory(), directory,
		recognition.NewSimulated(1.0, 42),
		engine.Rules{LateCutoffHour: 9, Location: time.UTC},
		logger)

	validator := &stubValidator{tokens: map[string]*middleware.JWTClaims{
		"member-token": {PrincipalID: member.ID, Role: string(member.Role)},
		"admin-token":  {PrincipalID: admin.ID, Role: string(admin.Role)},
	}}

	router := chi.NewRouter()
	New(svc, logger, validator).Register(router)

	return &fixture{router: router, member: member, admin: admin, validator: validator}
}

func newPrincipal(t *testing.T, fullName, email, badge, unit string, role identitymodels.Role) *identitymodels.Principal {
	t.Helper()
	p, err := identitymodels.NewPrincipal(id.NewPrincipalID(), email, fullName, badge, unit, role, "hash", time.Now().UTC())
	require.NoError(t, err)
	p.MarkEnrolled()
	return p
}

func (f *fixture) request(t *testing.T, method, path, token string, at time.Time, body any) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(t, method, path, body)
	} else {
		req = testutil.NewRequest(t, method, path)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.WithRequestTime(req, at)
}

func TestMarkRequiresToken(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "",
		time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC), nil))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestMarkCheckInAndOut(t *testing.T) {
	f := newFixture(t)
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "member-token",
		checkIn, map[string]string{"location": "Main Office"}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	result := testutil.UnmarshalResponse[service.MarkResult](t, rr)
	require.True(t, result.Recognized)
	require.Equal(t, "check_in", result.Action)
	require.Equal(t, "on_time", string(result.Event.Classification))
	require.Equal(t, "Main Office", result.Event.Location)

	rr = testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "member-token",
		checkIn.Add(8*time.Hour), nil))
	testutil.AssertStatusOK(t, rr)

	result = testutil.UnmarshalResponse[service.MarkResult](t, rr)
	require.Equal(t, "check_out", result.Action)
	require.NotNil(t, result.Event.CheckOutTime)

	rr = testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "member-token",
		checkIn.Add(9*time.Hour), nil))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
}

func TestMarkRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/attendance/mark", "{not json")
	req.Header.Set("Authorization", "Bearer member-token")
	rr := testutil.DoRequest(f.router, testutil.WithRequestTime(req, time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestToday(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/attendance/today", "member-token", now, nil))
	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[todayResponse](t, rr)
	require.Nil(t, resp.Event)
	require.False(t, resp.Completed)

	testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "member-token", now, nil))

	rr = testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/attendance/today", "member-token", now, nil))
	testutil.AssertStatusOK(t, rr)
	resp = testutil.UnmarshalResponse[todayResponse](t, rr)
	require.NotNil(t, resp.Event)
	require.Equal(t, "2026-03-09", resp.Date)
	require.False(t, resp.Completed)
}

func TestHistoryRangeValidation(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/attendance/history?from=banana", "member-token", now, nil))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestStatsDefaultsToCurrentMonth(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "member-token", now, nil))

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/attendance/stats", "member-token", now, nil))
	testutil.AssertStatusOK(t, rr)

	monthly := testutil.UnmarshalResponse[stats.Monthly](t, rr)
	require.Equal(t, 31, monthly.TotalDays)
	require.Equal(t, 1, monthly.PresentDays)
	require.Equal(t, 3, monthly.AttendancePercentage)
}

func TestAdminRoutesRequireAdministrator(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/admin/attendance/", "member-token", now, nil))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")

	rr = testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/admin/attendance/", "admin-token", now, nil))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONHasKey(t, rr, "records")
}

func TestAdminOverview(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "member-token", now, nil))

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/admin/attendance/overview?year=2026&month=3", "admin-token", now, nil))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "year", float64(2026))
	testutil.AssertJSONHasKey(t, rr, "principals")

	rr = testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/admin/attendance/overview?month=13", "admin-token", now, nil))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestAdminExportCSV(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	testutil.DoRequest(f.router, f.request(t, http.MethodPost, "/attendance/mark", "member-token", now, nil))

	rr := testutil.DoRequest(f.router, f.request(t, http.MethodGet, "/admin/attendance/export", "admin-token", now, nil))
	testutil.AssertStatusOK(t, rr)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Body.String(), "date,full_name,email")
	require.Contains(t, rr.Body.String(), "Alice Worker")
}
