package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fulfillment-service/internal/identity"
	"fulfillment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type verifierFunc func(ctx context.Context, token string) (*identity.Claims, error)

func (f verifierFunc) ParseAndValidateAccess(ctx context.Context, token string) (*identity.Claims, error) {
	return f(ctx, token)
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer \"abc.def.ghi\"", "abc.def.ghi", true},
		{"Bearer abc.def.ghi, extra", "abc.def.ghi", true},
		{"Basic dXNlcg==", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractBearerToken(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestOptionalAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uid := uuid.New()
	v := verifierFunc(func(_ context.Context, token string) (*identity.Claims, error) {
		if token != "good" {
			return nil, errors.New("bad token")
		}
		return &identity.Claims{UserID: uid, Role: string(service.RoleAdmin)}, nil
	})

	r := gin.New()
	r.Use(OptionalAuth(v, zap.NewNop()))
	r.GET("/who", func(c *gin.Context) {
		id, ok := service.UserIDFromContext(c.Request.Context())
		role, _ := service.RoleFromContext(c.Request.Context())
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, id.String()+" "+string(role))
	})
	r.GET("/private", AuthRequired(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(path, authz string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, "anonymous", do("/who", "").Body.String())
	assert.Equal(t, uid.String()+" ROLE_ADMIN", do("/who", "Bearer good").Body.String())
	assert.Equal(t, http.StatusUnauthorized, do("/who", "Bearer bad").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/private", "").Code)
	assert.Equal(t, http.StatusNoContent, do("/private", "Bearer good").Code)
}
