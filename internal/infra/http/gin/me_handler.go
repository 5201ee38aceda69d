package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentme-realtime/internal/app/dto"
)

type MeHandler struct{}

func (MeHandler) Me(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.Me{UserID: p.UserID, Role: p.Role})
}
