package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/netip"

	"ecoquest_miniapp/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const InternalTokenHeader = "X-Internal-Token"

// Authorization guards the internal listener. A request passes only when it
// comes from an allowed network and carries the shared token.
type Authorization struct {
	allowed []netip.Prefix
	token   string
}

func NewAuthorization(allowedCIDRs []string, token string) (*Authorization, error) {
	prefixes := make([]netip.Prefix, 0, len(allowedCIDRs))
	for _, cidr := range allowedCIDRs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("parse allowed cidr %q: %w", cidr, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return &Authorization{
		allowed: prefixes,
		token:   token,
	}, nil
}

func (a *Authorization) allowedAddr(raw string) bool {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.allowed {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (a *Authorization) InternalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		ip := c.ClientIP()
		if !a.allowedAddr(ip) {
			log.Warn("internal endpoint called from outside allowed networks",
				zap.String("ip", ip), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "forbidden"})
			return
		}

		// An unset token locks the endpoint.
		got := c.GetHeader(InternalTokenHeader)
		if a.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
			log.Warn("internal endpoint called with a bad token", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}

		c.Next()
	}
}
