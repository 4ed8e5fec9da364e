package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"ecoquest_miniapp/pkg/logger"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"
	"go.uber.org/zap"
)

const (
	defaultExpiry = 24 * time.Hour

	principalKey = "principal"
)

type Status string

const (
	StatusUser Status = "user"
	StatusBot  Status = "bot"
)

var (
	ErrNoUser     = errors.New("init data carries no user")
	ErrBotAccount = errors.New("bot accounts are not allowed")
)

// Principal is the authenticated caller. Every user-scoped operation takes
// its user id from here.
type Principal struct {
	UserID   int64
	Username string
	AuthDate time.Time
	Status   Status
}

type TelegramAuth struct {
	botToken  string
	debugMode bool
	expiry    time.Duration
}

func NewTelegramAuth(botToken string, debugMode bool, expiry time.Duration) *TelegramAuth {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &TelegramAuth{
		botToken:  botToken,
		debugMode: debugMode,
		expiry:    expiry,
	}
}

func (t *TelegramAuth) TelegramAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Info("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required", "code": "unauthorized"})
			return
		}

		if !strings.HasPrefix(authHeader, "Telegram ") {
			log.Info("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format", "code": "unauthorized"})
			return
		}

		principal, err := t.Authenticate(strings.TrimPrefix(authHeader, "Telegram "))
		if err != nil {
			log.Info("telegram authentication failed", zap.Error(err))
			if errors.Is(err, ErrBotAccount) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "bot accounts are not allowed", "code": "forbidden"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid telegram auth data", "code": "unauthorized"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// Authenticate validates the signed init data and extracts the caller. In
// debug mode the signature check is skipped.
func (t *TelegramAuth) Authenticate(raw string) (*Principal, error) {
	if !t.debugMode {
		if err := initdata.Validate(raw, t.botToken, t.expiry); err != nil {
			return nil, err
		}
	}

	data, err := initdata.Parse(raw)
	if err != nil {
		return nil, err
	}
	if data.User.ID == 0 {
		return nil, ErrNoUser
	}

	p := &Principal{
		UserID:   data.User.ID,
		Username: data.User.Username,
		AuthDate: data.AuthDate(),
		Status:   StatusUser,
	}
	if data.User.IsBot {
		p.Status = StatusBot
		return p, ErrBotAccount
	}
	return p, nil
}

func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the caller stored by TelegramAuthMiddleware.
func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}
