package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/config"
	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/avvvet/gym-services/internal/checkinsvc/service"
	"github.com/avvvet/gym-services/internal/checkinsvc/store"
	"github.com/avvvet/gym-services/internal/checkinsvc/ws"
	"github.com/avvvet/gym-services/internal/comm"
	"github.com/avvvet/gym-services/internal/testkit/checkinfakes"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func init() {
	log.SetLevel(log.ErrorLevel)
}

type envelope struct {
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	router      *chi.Mux
	clock       *checkinfakes.Clock
	members     *checkinfakes.MemberStore
	memberships *checkinfakes.MembershipStore
	visits      *checkinfakes.VisitStore
	hub         *ws.Hub
	auth        *jwtauth.JWTAuth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	ts := &testServer{
		clock:       checkinfakes.NewClock(t0),
		members:     checkinfakes.NewMemberStore(),
		memberships: checkinfakes.NewMembershipStore(),
		visits:      checkinfakes.NewVisitStore(),
		hub:         ws.NewHub(),
		auth:        jwtauth.New("HS256", []byte(secret), nil),
	}
	notifier := &checkinfakes.Notifier{}
	credentials := service.NewCredentialService(ts.members, store.NewMemoryTicketStore(), notifier, cfg, ts.clock.Now)
	eligibility := service.NewEligibilityService(ts.memberships, ts.clock.Now)
	visits := service.NewVisitService(ts.visits, credentials, eligibility, notifier, cfg, ts.clock.Now)
	occupancy := service.NewOccupancy(ts.visits.CountActive, cfg.OccupancyTTL, ts.clock.Now)

	ts.router = chi.NewRouter()
	NewHandler(visits, credentials, occupancy, ts.hub, secret, "8090").SetRoutes(ts.router)

	for id := int64(1); id <= 2; id++ {
		ts.members.Put(models.Member{
			ID:           id,
			Username:     fmt.Sprintf("member%d", id),
			HomeBranch:   "downtown",
			Active:       true,
			QRCredential: fmt.Sprintf("cred-%d", id),
		})
		ts.memberships.Put(models.Membership{
			ID:        id,
			MemberID:  id,
			StartDate: t0.AddDate(0, -1, 0),
			EndDate:   t0.AddDate(0, 1, 0),
			Status:    models.MembershipActive,
			Plan:      models.Plan{Name: "Monthly"},
		})
	}
	return ts
}

func (ts *testServer) token(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	_, tok, err := ts.auth.Encode(claims)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) adminToken(t *testing.T) string {
	return ts.token(t, map[string]interface{}{"role": RoleAdmin, "branch": "uptown"})
}

func (ts *testServer) memberToken(t *testing.T, id int64) string {
	return ts.token(t, map[string]interface{}{"role": RoleMember, "member_id": id})
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, env.Message, "8090")
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/v1/admin/checkin/validate", "", map[string]string{"code": "cred-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/v1/admin/checkin/validate", ts.memberToken(t, 1), map[string]string{"code": "cred-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/v1/member/ticket", ts.adminToken(t), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken(t)

	rec, env := ts.do(t, http.MethodPost, "/v1/admin/checkin/validate", admin, map[string]string{"code": "https://gym.example.com/c/cred-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var v service.Validation
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.True(t, v.Success)
	assert.Equal(t, int64(1), v.Member.ID)

	rec, env = ts.do(t, http.MethodPost, "/v1/admin/checkin/validate", admin, map[string]string{"code": "ghost"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_found", env.Error)
	assert.Equal(t, "credential not found", env.Message)

	rec, _ = ts.do(t, http.MethodPost, "/v1/admin/checkin/validate", admin, "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/v1/admin/checkin/validate", admin, map[string]string{"code": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveEndpoint(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken(t)

	rec, env := ts.do(t, http.MethodPost, "/v1/admin/checkin/approve", admin, map[string]interface{}{"code": "cred-1", "locker_number": 4})
	require.Equal(t, http.StatusCreated, rec.Code)
	var first service.CheckIn
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.True(t, first.Created)
	assert.Equal(t, "uptown", first.Visit.Branch)
	assert.Equal(t, 4, *first.Visit.LockerNumber)

	rec, env = ts.do(t, http.MethodPost, "/v1/admin/checkin/approve", admin, map[string]interface{}{"code": "cred-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var second service.CheckIn
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.False(t, second.Created)
	assert.Equal(t, first.Visit.ID, second.Visit.ID)

	rec, _ = ts.do(t, http.MethodPost, "/v1/admin/checkin/approve", admin, map[string]interface{}{"code": "cred-1", "locker_number": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveIneligible(t *testing.T) {
	ts := newTestServer(t)
	m, _ := ts.memberships.Get(2)
	m.EndDate = t0.Add(-time.Hour)
	ts.memberships.Put(m)

	rec, env := ts.do(t, http.MethodPost, "/v1/admin/checkin/approve", ts.adminToken(t), map[string]string{"code": "cred-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_membership", env.Error)
	assert.Zero(t, ts.visits.ActiveFor(2))
}

func TestMemberVisitAndCheckout(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken(t)
	member := ts.memberToken(t, 1)

	rec, _ := ts.do(t, http.MethodGet, "/v1/member/visit", member, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env := ts.do(t, http.MethodPost, "/v1/admin/checkin/approve", admin, map[string]string{"code": "cred-1"})
	var checkIn service.CheckIn
	require.NoError(t, json.Unmarshal(env.Data, &checkIn))
	path := fmt.Sprintf("/v1/member/visits/%d/checkout", checkIn.Visit.ID)

	rec, env = ts.do(t, http.MethodGet, "/v1/member/visit", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active models.Visit
	require.NoError(t, json.Unmarshal(env.Data, &active))
	assert.Equal(t, checkIn.Visit.ID, active.ID)

	rec, _ = ts.do(t, http.MethodPost, path, ts.memberToken(t, 2), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = ts.do(t, http.MethodPost, path, member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var closed models.Visit
	require.NoError(t, json.Unmarshal(env.Data, &closed))
	assert.Equal(t, models.VisitCompleted, closed.Status)

	rec, _ = ts.do(t, http.MethodPost, "/v1/member/visits/abc/checkout", member, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCheckout(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken(t)

	rec, _ := ts.do(t, http.MethodPost, "/v1/admin/visits/77/checkout", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env := ts.do(t, http.MethodPost, "/v1/admin/checkin/approve", admin, map[string]string{"code": "cred-2"})
	var checkIn service.CheckIn
	require.NoError(t, json.Unmarshal(env.Data, &checkIn))

	path := fmt.Sprintf("/v1/admin/visits/%d/checkout", checkIn.Visit.ID)
	for i := 0; i < 2; i++ {
		rec, env = ts.do(t, http.MethodPost, path, admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var v models.Visit
		require.NoError(t, json.Unmarshal(env.Data, &v))
		assert.Equal(t, models.VisitCompleted, v.Status)
	}
}

func TestTicketIssueAndStatus(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/v1/member/ticket", ts.memberToken(t, 1), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ticket models.Ticket
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "cred-1", ticket.Code)
	assert.True(t, t0.Add(2*time.Minute).Equal(ticket.ExpiresAt))

	rec, env = ts.do(t, http.MethodGet, "/v1/tickets/cred-1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.TicketPending), env.Message)

	rec, env = ts.do(t, http.MethodGet, "/v1/tickets/unknown/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.TicketNotFound), env.Message)

	rec, _ = ts.do(t, http.MethodPost, "/v1/member/ticket", ts.memberToken(t, 42), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOccupancyEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/v1/admin/checkin/approve", ts.adminToken(t), map[string]string{"code": "cred-1"})

	rec, env := ts.do(t, http.MethodGet, "/v1/occupancy", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body["count"])
}

func TestInfrastructureFailureIsOpaque(t *testing.T) {
	ts := newTestServer(t)
	ts.members.Err = errors.New("dial tcp 10.0.0.5:5432: connection refused")

	rec, env := ts.do(t, http.MethodPost, "/v1/admin/checkin/validate", ts.adminToken(t), map[string]string{"code": "cred-1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service unavailable", env.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestTicketSocket(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/tickets/cred-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() comm.TicketStatus {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg comm.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		var status comm.TicketStatus
		require.NoError(t, json.Unmarshal(msg.Data, &status))
		return status
	}

	initial := read()
	assert.Equal(t, "cred-1", initial.Code)
	assert.Equal(t, string(models.TicketNotFound), initial.State)

	require.Eventually(t, func() bool {
		return len(ts.hub.Watchers("cred-1")) == 1
	}, time.Second, 10*time.Millisecond)

	ts.hub.Push(comm.TicketStatus{Code: "cred-1", State: string(models.TicketUsed)})
	assert.Equal(t, string(models.TicketUsed), read().State)
}

func TestInt64Claim(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{in: float64(7), want: 7, ok: true},
		{in: int64(8), want: 8, ok: true},
		{in: 9, want: 9, ok: true},
		{in: json.Number("10"), want: 10, ok: true},
		{in: "11", want: 11, ok: true},
		{in: "x", ok: false},
		{in: nil, ok: false},
	}
	for _, tt := range tests {
		got, ok := int64Claim(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got)
		}
	}
}
