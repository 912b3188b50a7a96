package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/escrowpi/escrowpi/internal/config"
	"github.com/escrowpi/escrowpi/internal/payments"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubIdentity resolves "Bearer <username>" to username.
type stubIdentity struct{}

func (stubIdentity) CurrentUsername(_ context.Context, token string) (string, error) {
	u := strings.TrimPrefix(token, "Bearer ")
	if u == "" || u == token {
		return "", errors.New("bad token")
	}
	return u, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                    "0",
		Env:                     "development",
		LogLevel:                "error",
		LogFormat:               "text",
		PiAPIURL:                config.DefaultPiAPIURL,
		DemoMode:                true,
		OrderExpiry:             time.Hour,
		ExpirySweepInterval:     time.Minute,
		PaymentBreakerThreshold: 3,
		PaymentBreakerCooldown:  time.Second,
		CORSOrigins:             []string{"*"},
		RateLimitPerMinute:      600,
		RateLimitBurst:          100,
	}
}

// newTestServer creates a server with in-memory stores and a sandbox rail
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(),
		WithIdentityProvider(stubIdentity{}),
		WithPaymentProvider(payments.NewSandbox()),
	)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(s, "GET", "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before the expiry timer runs, got %d", w.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.expiryTimer.Start(ctx)
	deadline := time.Now().Add(time.Second)
	for !s.expiryTimer.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	w = do(s, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != Version {
		t.Errorf("Unexpected health response %+v", resp)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	if w := do(s, "GET", "/health/live", "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Server hasn't called Run() so ready is false
	if w := do(s, "GET", "/health/ready", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/v1/me",
		"GET:/v1/fees/breakdown",
		"GET:/v1/orders",
		"POST:/v1/orders",
		"GET:/v1/orders/:id",
		"POST:/v1/orders/:id/actions",
		"POST:/v1/orders/:id/dispute/propose",
		"POST:/v1/orders/:id/dispute/accept",
		"POST:/v1/orders/:id/dispute/withdraw",
		"POST:/v1/orders/:id/dispute/decline",
		"GET:/v1/orders/:id/comments",
		"POST:/v1/orders/:id/comments",
		"GET:/v1/notifications",
		"PUT:/v1/notifications/:id",
	}

	routeSet := make(map[string]bool)
	for _, route := range s.router.Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}
	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Auth wiring
// ---------------------------------------------------------------------------

func TestProtectedRoutesNeedViewer(t *testing.T) {
	s := newTestServer(t)

	if w := do(s, "GET", "/v1/orders", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", w.Code)
	}
	if w := do(s, "GET", "/v1/fees/breakdown?amount=10", "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected fee preview to be public, got %d", w.Code)
	}
}

func TestMeResolvesBearerAndDemoHeader(t *testing.T) {
	s := newTestServer(t)

	for name, headers := range map[string]map[string]string{
		"bearer": {"Authorization": "Bearer alice"},
		"demo":   {"X-Pi-Username": "alice"},
	} {
		w := do(s, "GET", "/v1/me", "", headers)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", name, w.Code)
		}
		var resp map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["username"] != "alice" {
			t.Errorf("%s: expected alice, got %q", name, resp["username"])
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end order flow
// ---------------------------------------------------------------------------

func TestOrderFlowThroughServer(t *testing.T) {
	s := newTestServer(t)
	bob := map[string]string{"Authorization": "Bearer bob"}
	alice := map[string]string{"Authorization": "Bearer alice"}

	w := do(s, "POST", "/v1/orders", `{"counterparty":"alice","type":"request","amount":"74.61"}`, bob)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("parse: %v", err)
	}

	w = do(s, "POST", "/v1/orders/"+created.Order.ID+"/actions", `{"action":"accept","expectedStatus":"requested"}`, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(s, "GET", "/v1/orders/"+created.Order.ID, "", map[string]string{"Authorization": "Bearer mallory"})
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider: expected 403, got %d", w.Code)
	}

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}

	w = do(s, "GET", "/v1/notifications?status=uncleared", "", bob)
	if w.Code != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var inbox struct {
		Notifications []struct {
			ID      string `json:"id"`
			OrderID string `json:"orderId"`
			Reason  string `json:"reason"`
		} `json:"notifications"`
		Uncleared int `json:"uncleared"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if inbox.Uncleared != 1 || len(inbox.Notifications) != 1 {
		t.Fatalf("Expected one notification for bob, got %+v", inbox)
	}
	if got := inbox.Notifications[0]; got.OrderID != created.Order.ID || got.Reason != "User alice has marked the transaction as Paid" {
		t.Errorf("Unexpected notification %+v", got)
	}

	w = do(s, "PUT", "/v1/notifications/"+inbox.Notifications[0].ID, "", alice)
	if w.Code != http.StatusNotFound {
		t.Errorf("toggle by non-owner: expected 404, got %d", w.Code)
	}
	w = do(s, "PUT", "/v1/notifications/"+inbox.Notifications[0].ID, "", bob)
	if w.Code != http.StatusOK {
		t.Errorf("toggle: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	if w := do(s, "GET", "/v1/nonexistent", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestMaskDSN(t *testing.T) {
	got := maskDSN("postgres://escrow:secret@db:5432/escrowpi?sslmode=disable")
	if strings.Contains(got, "secret") {
		t.Errorf("password leaked: %s", got)
	}
	if got := maskDSN("postgres://db:5432/escrowpi"); got != "postgres://db:5432/escrowpi" {
		t.Errorf("DSN without credentials changed: %s", got)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	s := newTestServer(t)

	w := do(s, "GET", "/health/live", "", map[string]string{"X-Request-ID": "req-from-proxy"})
	if got := w.Header().Get("X-Request-ID"); got != "req-from-proxy" {
		t.Errorf("Expected caller request id, got %q", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := newTestServer(t)
	s.drainDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !(s.ready.Load() && s.expiryTimer.Running()) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !s.ready.Load() {
		t.Fatal("server never became ready")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.ready.Load() {
		t.Error("Expected not ready after shutdown")
	}
}
