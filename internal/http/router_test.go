package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/signalhub/internal/auth"
	apphttp "github.com/geocoder89/signalhub/internal/http"
	"github.com/geocoder89/signalhub/internal/http/middlewares"
	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/geocoder89/signalhub/internal/policy"
	"github.com/geocoder89/signalhub/internal/repo/memory"
	"github.com/geocoder89/signalhub/internal/security"
	"github.com/geocoder89/signalhub/internal/signals"
	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret-key"

type testApp struct {
	router *gin.Engine
	users  *memory.UsersRepo
	tokens *auth.Manager
}

func newTestApp(t *testing.T, limiter middlewares.Limiter) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := memory.NewUsersRepo()
	tokens, err := auth.NewManager(testSecret)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	engine := policy.MustDefault()

	router := apphttp.NewRouter(logger, apphttp.Deps{
		Env:         "test",
		Guard:       auth.NewGuard(tokens, users, nil),
		Policy:      engine,
		Users:       users,
		Tokens:      tokens,
		Signals:     signals.NewService(memory.NewSignalsRepo(), engine, nil, logger, signals.Options{}),
		AuthLimiter: limiter,
		CORSOrigins: []string{"http://localhost:5173"},
	})

	return &testApp{router: router, users: users, tokens: tokens}
}

// account creates a user directly in the store and returns a bearer token.
func (a *testApp) account(t *testing.T, username string, role user.Role) (user.User, string) {
	t.Helper()

	hash, err := security.HashPassword("pw-" + username)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := a.users.Create(context.Background(), username, hash, username, role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	tok, _, err := a.tokens.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return u, tok
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		buf = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type signalJSON struct {
	ID          string  `json:"id"`
	CoinName    string  `json:"coin_name"`
	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	StopLoss    float64 `json:"stop_loss"`
	Status      string  `json:"status"`
	CreatedBy   *string `json:"created_by"`
}

type errorJSON struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, want, w.Body.String())
	}
}

var btc = map[string]any{
	"coin_name":    "BTC/USDT",
	"entry_price":  42500.5,
	"target_price": 43800,
	"stop_loss":    41800,
	"note":         "breakout",
}

func createSignal(t *testing.T, app *testApp, token string) signalJSON {
	t.Helper()
	w := app.do(t, http.MethodPost, "/signals", token, btc)
	expectStatus(t, w, http.StatusCreated)
	return decode[struct {
		Signal signalJSON `json:"signal"`
	}](t, w).Signal
}

func TestAdminSignalIsPublishedImmediately(t *testing.T) {
	app := newTestApp(t, nil)
	_, adminTok := app.account(t, "admin", user.RoleAdmin)
	_, userTok := app.account(t, "viewer", user.RoleUser)

	s := createSignal(t, app, adminTok)
	if s.Status != "approved" {
		t.Fatalf("admin signal status = %q, want approved", s.Status)
	}
	if s.EntryPrice != 42500.5 {
		t.Fatalf("entry_price = %v", s.EntryPrice)
	}

	w := app.do(t, http.MethodGet, "/signals", userTok, nil)
	expectStatus(t, w, http.StatusOK)

	list := decode[[]signalJSON](t, w)
	if len(list) != 1 || list[0].ID != s.ID {
		t.Fatalf("viewer should see the approved signal, got %+v", list)
	}
}

func TestCallmakerSignalWaitsForReview(t *testing.T) {
	app := newTestApp(t, nil)
	cm, cmTok := app.account(t, "callmaker", user.RoleCallmaker)
	_, userTok := app.account(t, "viewer", user.RoleUser)

	s := createSignal(t, app, cmTok)
	if s.Status != "pending" {
		t.Fatalf("callmaker signal status = %q, want pending", s.Status)
	}
	if s.CreatedBy == nil || *s.CreatedBy != cm.ID {
		t.Fatalf("created_by = %v, want %s", s.CreatedBy, cm.ID)
	}

	w := app.do(t, http.MethodGet, "/signals", userTok, nil)
	expectStatus(t, w, http.StatusOK)
	if list := decode[[]signalJSON](t, w); len(list) != 0 {
		t.Fatalf("viewer must not see pending signals, got %+v", list)
	}

	w = app.do(t, http.MethodGet, "/signals/"+s.ID, userTok, nil)
	expectStatus(t, w, http.StatusNotFound)

	w = app.do(t, http.MethodGet, "/signals/pending/count", cmTok, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]int](t, w)["count"]; got != 1 {
		t.Fatalf("pending count = %d, want 1", got)
	}
}

func TestUserCannotCreateSignals(t *testing.T) {
	app := newTestApp(t, nil)
	_, userTok := app.account(t, "viewer", user.RoleUser)

	w := app.do(t, http.MethodPost, "/signals", userTok, btc)
	expectStatus(t, w, http.StatusForbidden)

	if code := decode[errorJSON](t, w).Error.Code; code != "forbidden" {
		t.Fatalf("code = %q", code)
	}
}

func TestModeration(t *testing.T) {
	app := newTestApp(t, nil)
	_, adminTok := app.account(t, "admin", user.RoleAdmin)
	_, cmTok := app.account(t, "callmaker", user.RoleCallmaker)

	s := createSignal(t, app, cmTok)

	w := app.do(t, http.MethodPatch, "/signals/"+s.ID+"/status", cmTok, map[string]string{"status": "approved"})
	expectStatus(t, w, http.StatusForbidden)

	w = app.do(t, http.MethodGet, "/signals/pending", adminTok, nil)
	expectStatus(t, w, http.StatusOK)
	if q := decode[[]signalJSON](t, w); len(q) != 1 || q[0].ID != s.ID {
		t.Fatalf("moderation queue = %+v", q)
	}

	w = app.do(t, http.MethodPatch, "/signals/"+s.ID+"/status", adminTok, map[string]string{"status": "approved"})
	expectStatus(t, w, http.StatusOK)
	got := decode[signalJSON](t, w)
	if got.Status != "approved" || got.CoinName != "BTC/USDT" || got.TargetPrice != 43800 {
		t.Fatalf("unexpected signal after approval: %+v", got)
	}

	w = app.do(t, http.MethodPatch, "/signals/"+s.ID+"/status", adminTok, map[string]string{"status": "rejected"})
	expectStatus(t, w, http.StatusBadRequest)
	if code := decode[errorJSON](t, w).Error.Code; code != "validation_failed" {
		t.Fatalf("terminal transition code = %q", code)
	}

	w = app.do(t, http.MethodPatch, "/signals/"+s.ID+"/status", adminTok, map[string]string{"status": "archived"})
	expectStatus(t, w, http.StatusBadRequest)

	w = app.do(t, http.MethodPatch, "/signals/missing/status", adminTok, map[string]string{"status": "approved"})
	expectStatus(t, w, http.StatusNotFound)
}

func TestRegisterThenLogin(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "u1", "password": "p1", "fullname": "U One",
	})
	expectStatus(t, w, http.StatusCreated)

	w = app.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "u1", "password": "p2", "fullname": "Again",
	})
	expectStatus(t, w, http.StatusBadRequest)
	if code := decode[errorJSON](t, w).Error.Code; code != "username_taken" {
		t.Fatalf("duplicate code = %q", code)
	}

	w = app.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "u2"})
	expectStatus(t, w, http.StatusBadRequest)

	w = app.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "u1", "password": "p1"})
	expectStatus(t, w, http.StatusOK)

	login := decode[struct {
		Token string `json:"token"`
		User  struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"user"`
	}](t, w)

	claims, err := app.tokens.Verify(login.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.UserID != login.User.ID || claims.Role != "user" || login.User.Role != "user" {
		t.Fatalf("token identity %+v does not match user %+v", claims, login.User)
	}
	if time.Until(claims.ExpiresAt.Time) > auth.TokenTTL {
		t.Fatalf("token lives longer than %s", auth.TokenTTL)
	}

	w = app.do(t, http.MethodGet, "/auth/user", login.Token, nil)
	expectStatus(t, w, http.StatusOK)
	me := decode[map[string]any](t, w)
	if me["username"] != "u1" || me["name"] != "U One" || me["createdAt"] == nil {
		t.Fatalf("profile = %+v", me)
	}
	if _, leaked := me["password_hash"]; leaked {
		t.Fatal("profile leaks the password hash")
	}

	w = app.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "u1", "password": "wrong"})
	expectStatus(t, w, http.StatusUnauthorized)

	w = app.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ghost", "password": "p1"})
	expectStatus(t, w, http.StatusNotFound)
}

func TestRegisterRejectsPasswordOverBcryptLimit(t *testing.T) {
	app := newTestApp(t, nil)

	// 72 characters but 144 bytes
	w := app.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "u1", "password": strings.Repeat("é", 72), "fullname": "U One",
	})
	expectStatus(t, w, http.StatusBadRequest)
	if code := decode[errorJSON](t, w).Error.Code; code != "validation_failed" {
		t.Fatalf("code = %q", code)
	}

	w = app.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "u1", "password": strings.Repeat("é", 36), "fullname": "U One",
	})
	expectStatus(t, w, http.StatusCreated)
}

func TestLoginTrimsUsername(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": " u1 ", "password": "p1", "fullname": "U One",
	})
	expectStatus(t, w, http.StatusCreated)

	for _, name := range []string{"u1", " u1 ", "u1\t"} {
		w = app.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": name, "password": "p1"})
		expectStatus(t, w, http.StatusOK)
	}
}

func TestOwnerEdit(t *testing.T) {
	app := newTestApp(t, nil)
	_, cmTok := app.account(t, "callmaker", user.RoleCallmaker)
	_, rivalTok := app.account(t, "rival", user.RoleCallmaker)
	_, adminTok := app.account(t, "admin", user.RoleAdmin)

	s := createSignal(t, app, cmTok)

	edit := map[string]any{
		"coin_name":    "BTC/USDT",
		"entry_price":  "42000",
		"target_price": "45000",
		"stop_loss":    "41000",
	}

	w := app.do(t, http.MethodPut, "/signals/"+s.ID, cmTok, edit)
	expectStatus(t, w, http.StatusOK)
	got := decode[signalJSON](t, w)
	if got.TargetPrice != 45000 || got.Status != "pending" {
		t.Fatalf("unexpected signal after edit: %+v", got)
	}

	for _, tok := range []string{rivalTok, adminTok} {
		w = app.do(t, http.MethodPut, "/signals/"+s.ID, tok, edit)
		expectStatus(t, w, http.StatusForbidden)
	}

	edit["entry_price"] = "not-a-number"
	w = app.do(t, http.MethodPut, "/signals/"+s.ID, cmTok, edit)
	expectStatus(t, w, http.StatusBadRequest)

	edit["entry_price"] = -1
	w = app.do(t, http.MethodPut, "/signals/"+s.ID, cmTok, edit)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestDelete(t *testing.T) {
	app := newTestApp(t, nil)
	_, cmTok := app.account(t, "callmaker", user.RoleCallmaker)
	_, rivalTok := app.account(t, "rival", user.RoleCallmaker)
	_, adminTok := app.account(t, "admin", user.RoleAdmin)

	mine := createSignal(t, app, cmTok)
	other := createSignal(t, app, cmTok)

	w := app.do(t, http.MethodDelete, "/signals/"+mine.ID, rivalTok, nil)
	expectStatus(t, w, http.StatusForbidden)

	w = app.do(t, http.MethodDelete, "/signals/"+mine.ID, cmTok, nil)
	expectStatus(t, w, http.StatusOK)

	w = app.do(t, http.MethodDelete, "/signals/"+other.ID, adminTok, nil)
	expectStatus(t, w, http.StatusOK)

	w = app.do(t, http.MethodDelete, "/signals/"+other.ID, adminTok, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestAuthenticationFailures(t *testing.T) {
	app := newTestApp(t, nil)
	u, _ := app.account(t, "viewer", user.RoleUser)

	expired, _, err := app.tokens.WithClock(func() time.Time { return time.Now().Add(-25 * time.Hour) }).Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, _ := auth.NewManager("another-secret")
	forged, _, _ := other.Issue(u)

	cases := map[string]string{
		"missing": "",
		"garbage": "Bearer not.a.token",
		"scheme":  "Basic abc",
		"expired": "Bearer " + expired,
		"forged":  "Bearer " + forged,
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/signals", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			app.router.ServeHTTP(w, req)

			expectStatus(t, w, http.StatusUnauthorized)
			if code := decode[errorJSON](t, w).Error.Code; code != "unauthenticated" {
				t.Fatalf("code = %q", code)
			}
		})
	}
}

func TestDeletedAccountTokenIsRejected(t *testing.T) {
	app := newTestApp(t, nil)
	u, tok := app.account(t, "leaver", user.RoleCallmaker)

	if err := app.users.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	w := app.do(t, http.MethodGet, "/auth/user", tok, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestLoginIsRateLimited(t *testing.T) {
	app := newTestApp(t, middlewares.NewMemoryLimiter(2, time.Minute))

	body := map[string]string{"username": "ghost", "password": "x"}
	for i := 0; i < 2; i++ {
		w := app.do(t, http.MethodPost, "/auth/login", "", body)
		expectStatus(t, w, http.StatusNotFound)
	}

	w := app.do(t, http.MethodPost, "/auth/login", "", body)
	expectStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestForwardedForDoesNotEvadeRateLimit(t *testing.T) {
	app := newTestApp(t, middlewares.NewMemoryLimiter(2, time.Minute))

	body, _ := json.Marshal(map[string]string{"username": "ghost", "password": "x"})

	var w *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i+1))
		req.Header.Set("X-Real-IP", "198.51.100."+strconv.Itoa(i+1))

		w = httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
	}

	expectStatus(t, w, http.StatusTooManyRequests)
}

func TestRequestHygiene(t *testing.T) {
	app := newTestApp(t, nil)
	_, cmTok := app.account(t, "callmaker", user.RoleCallmaker)

	req := httptest.NewRequest(http.MethodPost, "/signals", bytes.NewBufferString(`coin=BTC`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+cmTok)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusUnsupportedMediaType)

	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}

	req = httptest.NewRequest(http.MethodOptions, "/signals", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusNoContent)
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatal("CORS origin not echoed")
	}

	w = app.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, w, http.StatusOK)
}
