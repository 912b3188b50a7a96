package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(h gin.HandlerFunc, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(h)
	router.GET("/v1/orders", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(method, "/v1/orders", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware(t *testing.T) {
	w := serve(HeadersMiddleware(), http.MethodGet, "")

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		wantOrigin  string
		wantCredsOK bool
	}{
		{"listed origin", []string{"https://app.escrowpi.io"}, "https://app.escrowpi.io", "https://app.escrowpi.io", true},
		{"wildcard", []string{"*"}, "https://anything.example", "https://anything.example", false},
		{"unlisted origin", []string{"https://app.escrowpi.io"}, "https://evil.example", "", false},
		{"no origin", []string{"*"}, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(CORSMiddleware(tt.allowed), http.MethodGet, tt.origin)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredsOK, w.Header().Get("Access-Control-Allow-Credentials") == "true")
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	w := serve(CORSMiddleware([]string{"*"}), http.MethodOptions, "https://app.escrowpi.io")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Pi-Username")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestCheckUpstream(t *testing.T) {
	tests := []struct {
		url        string
		production bool
		wantErr    bool
	}{
		{"http://localhost:4000", false, false},
		{"https://api.minepi.com/v2", false, false},
		{"ftp://api.minepi.com", false, true},
		{"https://", false, true},
		{"http://203.0.113.10", true, true},
		{"https://localhost", true, true},
		{"https://127.0.0.1", true, true},
		{"https://10.1.2.3", true, true},
		{"https://169.254.169.254", true, true},
		{"https://203.0.113.10", true, false},
	}
	for _, tt := range tests {
		err := CheckUpstream(tt.url, tt.production)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
		} else {
			assert.NoError(t, err, tt.url)
		}
	}
}
