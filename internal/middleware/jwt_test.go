package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/slotbook-api/internal/models"
	appErrors "github.com/noah-isme/slotbook-api/pkg/errors"
)

type validatorStub struct{}

func (validatorStub) ValidateToken(token string) (*models.HostClaims, error) {
	if token == "good" {
		return &models.HostClaims{HostID: "host-1"}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func hostRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		if host := HostFromContext(c); host != nil {
			c.String(http.StatusOK, host.HostID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	return r
}

func call(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresValidBearer(t *testing.T) {
	r := hostRouter(JWT(validatorStub{}))

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "Bearer bad").Code)

	w := call(r, "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "host-1", w.Body.String())
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	r := hostRouter(OptionalJWT(validatorStub{}))

	assert.Equal(t, "anonymous", call(r, "").Body.String())
	assert.Equal(t, "anonymous", call(r, "Bearer bad").Body.String())
	assert.Equal(t, "host-1", call(r, "bearer good").Body.String())
}
