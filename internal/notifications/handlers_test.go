package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowpi/escrowpi/internal/auth"
)

func setupTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u != "" {
			c.Set(auth.ContextKeyUsername, u)
		}
		c.Next()
	}, auth.RequireAuth())
	NewHandler(svc).RegisterProtectedRoutes(v1)
	return r
}

func do(t *testing.T, r http.Handler, method, path, user string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHandler_ListAndToggle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	require.NoError(t, svc.Notify(ctx, "bob", "EP1", "User alice has marked the transaction as Paid"))
	require.NoError(t, svc.Notify(ctx, "bob", "EP2", "User alice has proposed a 20.00% refund"))
	r := setupTestRouter(svc)

	w, body := do(t, r, http.MethodGet, "/v1/notifications?status=uncleared", "bob")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 2, body["uncleared"])
	first := body["notifications"].([]any)[0].(map[string]any)
	assert.Equal(t, "EP2", first["orderId"])
	id := first["id"].(string)

	w, body = do(t, r, http.MethodPut, "/v1/notifications/"+id, "bob")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["notification"].(map[string]any)["cleared"])

	w, body = do(t, r, http.MethodGet, "/v1/notifications?status=cleared", "bob")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 1, body["uncleared"])

	w, body = do(t, r, http.MethodGet, "/v1/notifications", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []any{}, body["notifications"])
}

func TestHandler_Errors(t *testing.T) {
	svc := newTestService()
	require.NoError(t, svc.Notify(context.Background(), "bob", "EP1", "paid"))
	r := setupTestRouter(svc)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		code   int
		kind   string
	}{
		{"bad status", http.MethodGet, "/v1/notifications?status=read", "bob", http.StatusBadRequest, "validation_error"},
		{"bad skip", http.MethodGet, "/v1/notifications?skip=-1", "bob", http.StatusBadRequest, "validation_error"},
		{"bad limit", http.MethodGet, "/v1/notifications?limit=ten", "bob", http.StatusBadRequest, "validation_error"},
		{"unknown id", http.MethodPut, "/v1/notifications/ntf_nope", "bob", http.StatusNotFound, "not_found"},
		{"anonymous", http.MethodGet, "/v1/notifications", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, r, tt.method, tt.path, tt.user)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["error"])
			}
		})
	}
}
