package transport

import (
	"net/http"

	"go-product-describer/internal/logger"
	"go-product-describer/internal/repository"
	"go-product-describer/internal/workflow"

	"github.com/gin-gonic/gin"
)

const (
	sessionCookie     = "pd_session"
	controllerContext = "controller"
)

// sessionMiddleware attaches the caller's controller, starting a session when
// the cookie is missing, malformed or expired
func sessionMiddleware(sessions repository.SessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := c.Cookie(sessionCookie); err == nil {
			if ctrl, err := sessions.Get(id); err == nil {
				c.Set(controllerContext, ctrl)
				c.Next()
				return
			}
		}

		ctrl, err := sessions.Create()
		if err != nil {
			logger.WithError(err).Error("Failed to create session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     sessionCookie,
			Value:    ctrl.SessionID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		c.Set(controllerContext, ctrl)
		c.Next()
	}
}

func controllerFrom(c *gin.Context) *workflow.Controller {
	return c.MustGet(controllerContext).(*workflow.Controller)
}
