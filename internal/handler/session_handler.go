package handler

import (
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"OneTapTip/internal/models"
)

// Connect opens a session for the given account: the balance oracle and the
// receipt mirror start for it.
func (h *Handler) Connect(c *gin.Context) {
	var req models.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if _, err := solana.PublicKeyFromBase58(req.Account); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account address"})
		return
	}

	h.session.OnConnect(req.Account)
	c.JSON(http.StatusOK, gin.H{"account": req.Account})
}

// Disconnect closes the session and resets balance and history state.
func (h *Handler) Disconnect(c *gin.Context) {
	h.session.OnDisconnect()
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// GetBalance returns the oracle's last known snapshot. A not-yet-known
// balance is not an error; the first poll may still be in flight.
func (h *Handler) GetBalance(c *gin.Context) {
	if _, ok := h.session.Account(); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no account connected"})
		return
	}

	snap := h.oracle.Latest()
	if !snap.Known {
		c.JSON(http.StatusOK, gin.H{"known": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"known":      true,
		"balance":    snap.Value.String(),
		"observedAt": snap.ObservedAt,
	})
}
