package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mwhitt/trustrail/internal/config"
	"github.com/mwhitt/trustrail/internal/trust"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing (in-memory storage)
func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Env:               "development",
		LogLevel:          "error",
		Weights:           trust.DefaultWeights,
		FlagRiskIncrement: 15,
		ProviderTimeout:   500 * time.Millisecond,
		BlockBelow:        40,
		AllowAtOrAbove:    80,
		WebhookSecret:     "test-secret",
		RateLimitRPS:      1000,
		RateLimitBurst:    2000,
	}
}

// newTestServer creates a server backed by in-memory stores
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/readyz", "")
	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/healthz",
		"GET:/readyz",
		"GET:/health",
		"GET:/metrics",
		"GET:/v1/ws",
		"POST:/v1/events",
		"GET:/v1/accounts/:account/history",
		"POST:/v1/references",
		"GET:/v1/references/lookup",
		"GET:/v1/references/cross-lookup",
		"GET:/v1/accounts/:account/references",
		"POST:/v1/accounts/:account/score",
		"GET:/v1/accounts/:account/profile",
		"POST:/v1/accounts/:account/flags",
		"POST:/v1/accounts/:account/payments/success",
		"POST:/v1/accounts/:account/payments/failure",
		"POST:/v1/decision",
		"POST:/v1/alerts",
		"GET:/v1/accounts/:account/alerts",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end flow: events, references, scoring, decision
// ---------------------------------------------------------------------------

func TestScoreFlow(t *testing.T) {
	s := newTestServer(t)

	// Record a login event
	w := doJSON(t, s, "POST", "/v1/events",
		`{"accountId":"@alice","eventType":"login"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 recording event, got %d: %s", w.Code, w.Body.String())
	}

	// Register a reference
	w = doJSON(t, s, "POST", "/v1/references",
		`{"accountId":"@alice","referenceType":"email","value":"alice@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 registering reference, got %d: %s", w.Code, w.Body.String())
	}

	// Record a successful payment
	w = doJSON(t, s, "POST", "/v1/accounts/@alice/payments/success",
		`{"amountCents":2500}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 recording payment, got %d: %s", w.Code, w.Body.String())
	}

	// Calculate the score
	w = doJSON(t, s, "POST", "/v1/accounts/@alice/score", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 calculating score, got %d: %s", w.Code, w.Body.String())
	}

	var result map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse score response: %v", err)
	}
	score, ok := result["score"].(float64)
	if !ok {
		t.Fatalf("Expected numeric score, got %v", result["score"])
	}
	if score < 0 || score > 100 {
		t.Errorf("Score %v out of range", score)
	}
	if result["tier"] == nil || result["tier"] == "" {
		t.Error("Expected tier in score response")
	}

	// Profile should now exist
	w = doJSON(t, s, "GET", "/v1/accounts/@alice/profile", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for profile, got %d", w.Code)
	}

	// Decision endpoint for the same account
	w = doJSON(t, s, "POST", "/v1/decision", `{"account":"@alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for decision, got %d: %s", w.Code, w.Body.String())
	}

	var decision map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("Failed to parse decision response: %v", err)
	}
	switch decision["action"] {
	case "allow", "throttle", "block":
	default:
		t.Errorf("Unexpected action %v", decision["action"])
	}
}

func TestHighSeverityFlagBlocks(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "POST", "/v1/accounts/@mallory/flags",
		`{"reason":"fraud_confirmed"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 adding flag, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "POST", "/v1/decision", `{"account":"@mallory"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for decision, got %d: %s", w.Code, w.Body.String())
	}

	var decision map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("Failed to parse decision response: %v", err)
	}
	if decision["action"] != "block" {
		t.Errorf("Expected block for fraud_confirmed flag, got %v", decision["action"])
	}
}

func TestInvalidAccountRejected(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "POST", "/v1/accounts/not-a-handle/score", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed handle, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
