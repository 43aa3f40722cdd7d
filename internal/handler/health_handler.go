package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	account, connected := h.session.Account()
	resp := gin.H{"status": "ok", "connected": connected}
	if connected {
		resp["account"] = account
	}
	c.JSON(http.StatusOK, resp)
}
