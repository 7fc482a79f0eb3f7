package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SubjectKey is the gin context key holding the authenticated subject.
const SubjectKey = "auth_subject"

// GinAuth returns a gin middleware rejecting unauthenticated requests with 401.
func (s *Service) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := s.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="foxy", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// authenticate extracts and validates authentication from HTTP request
func (s *Service) authenticate(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return s.VerifyToken(strings.TrimSpace(token))
		}
	}
	if username, password, ok := r.BasicAuth(); ok {
		return s.CheckPassword(username, password)
	}
	return "", ErrInvalidCredentials
}
