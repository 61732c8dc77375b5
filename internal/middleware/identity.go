package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// Header names set by the authenticating reverse proxy. The server itself
// does not authenticate; it trusts the proxy to have verified the caller
// before setting these.
const (
	HeaderOrganization = "X-EQA-Organization"
	HeaderRole         = "X-EQA-Role"
	HeaderEmail        = "X-EQA-Email"
)

const (
	contextParticipant = "participant"
	contextEmail       = "user_email"
)

// Identity resolves the requesting participant from the proxy headers.
// Requests without an organization are rejected.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := c.GetHeader(HeaderOrganization)
		if org == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.NewAPIError("UNAUTHENTICATED", "missing organization identity"),
			})
			return
		}

		role := domain.RoleUser
		if c.GetHeader(HeaderRole) == string(domain.RoleSuperuser) {
			role = domain.RoleSuperuser
		}

		c.Set(contextParticipant, domain.ParticipantContext{
			Organization: org,
			Role:         role,
		})
		c.Set(contextEmail, c.GetHeader(HeaderEmail))
		c.Next()
	}
}

// Participant returns the identity resolved by the Identity middleware.
func Participant(c *gin.Context) domain.ParticipantContext {
	if v, ok := c.Get(contextParticipant); ok {
		if p, ok := v.(domain.ParticipantContext); ok {
			return p
		}
	}
	return domain.ParticipantContext{}
}

// UserEmail returns the requester's email, falling back to the organization
// name when the proxy does not forward one.
func UserEmail(c *gin.Context) string {
	if email := c.GetString(contextEmail); email != "" {
		return email
	}
	return Participant(c).Organization
}
