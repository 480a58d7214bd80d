package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nordfaktur/invoicing_backend/utils"
)

func adminTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware())
	r.POST("/admin/ping", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireAdmin(t *testing.T) {
	r := adminTestRouter()

	adminToken, err := utils.JwtGenerate(1, 1, true)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	userToken, err := utils.JwtGenerate(2, 1, false)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "admin token passes", authHeader: "Bearer " + adminToken, wantStatus: http.StatusNoContent},
		{name: "regular token is forbidden", authHeader: "Bearer " + userToken, wantStatus: http.StatusForbidden},
		{name: "no token is forbidden", authHeader: "", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/ping", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
