package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthorization_RejectsBadCIDR(t *testing.T) {
	_, err := NewAuthorization([]string{"10.0.0.0/8", "not-a-cidr"}, "s3cret")
	assert.Error(t, err)
}

func TestInternalOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		cidrs  []string
		token  string
		remote string
		header string
		want   int
	}{
		{name: "allowed", cidrs: []string{"10.0.0.0/8"}, token: "s3cret", remote: "10.1.2.3:5000", header: "s3cret", want: http.StatusNoContent},
		{name: "ipv4 mapped", cidrs: []string{"127.0.0.1/32"}, token: "s3cret", remote: "[::ffff:127.0.0.1]:5000", header: "s3cret", want: http.StatusNoContent},
		{name: "outside network", cidrs: []string{"10.0.0.0/8"}, token: "s3cret", remote: "203.0.113.9:5000", header: "s3cret", want: http.StatusForbidden},
		{name: "wrong token", cidrs: []string{"10.0.0.0/8"}, token: "s3cret", remote: "10.1.2.3:5000", header: "guess", want: http.StatusUnauthorized},
		{name: "missing token", cidrs: []string{"10.0.0.0/8"}, token: "s3cret", remote: "10.1.2.3:5000", want: http.StatusUnauthorized},
		{name: "token not configured", cidrs: []string{"10.0.0.0/8"}, remote: "10.1.2.3:5000", want: http.StatusUnauthorized},
		{name: "no networks", token: "s3cret", remote: "127.0.0.1:5000", header: "s3cret", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAuthorization(tt.cidrs, tt.token)
			require.NoError(t, err)

			router := gin.New()
			require.NoError(t, router.SetTrustedProxies(nil))
			router.POST("/internal/ping", a.InternalOnly(), func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set("X-Forwarded-For", "10.9.9.9")
			if tt.header != "" {
				req.Header.Set(InternalTokenHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
