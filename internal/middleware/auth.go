package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/dispatch-api/internal/handler"
	"github.com/jwalitptl/dispatch-api/internal/model"
)

const (
	ContextSession    = "session"
	ContextAccount    = "account"
	ContextHospitalID = "hospital_id"
)

// Authenticator resolves a bearer token to the live session behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.AuthSession, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Authenticate verifies the bearer token and the session it names, then puts
// the account (and an operator's hospital) in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing or invalid authorization header"))
			return
		}

		sess, err := m.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			handler.Error(c, err)
			return
		}

		c.Set(ContextSession, sess)
		c.Set(ContextAccount, sess.Account)
		if sess.Hospital != nil {
			c.Set(ContextHospitalID, sess.Hospital.ID)
		}
		c.Next()
	}
}

// BearerToken accepts the header or, for EventSource clients that cannot set
// headers, an access_token query parameter.
func BearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// RequireRole rejects accounts of any other role.
func (m *AuthMiddleware) RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		acc := CurrentAccount(c)
		if acc == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
			return
		}
		if acc.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("permission denied"))
			return
		}
		if role == model.RoleOperator {
			if _, ok := HospitalID(c); !ok {
				c.AbortWithStatusJSON(http.StatusForbidden, handler.NewErrorResponse("operator has no hospital"))
				return
			}
		}
		c.Next()
	}
}

func CurrentSession(c *gin.Context) *model.AuthSession {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*model.AuthSession)
	return sess
}

func CurrentAccount(c *gin.Context) *model.Account {
	v, ok := c.Get(ContextAccount)
	if !ok {
		return nil
	}
	acc, _ := v.(*model.Account)
	return acc
}

func HospitalID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextHospitalID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
