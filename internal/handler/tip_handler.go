package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"OneTapTip/internal/models"
	"OneTapTip/internal/pipeline"
	"OneTapTip/utils"
)

// SendTip submits one transfer from the connected account and blocks until it
// settles (or fails). The mirror picks the new receipt up on its own channel;
// clients must not expect GET /tips to reflect it synchronously.
func (h *Handler) SendTip(c *gin.Context) {
	var req models.SendTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	account, _ := h.session.Account()
	receipt, err := h.pipeline.Submit(c.Request.Context(), account, models.TransferRequest{
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Note:      req.Message,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SendTipResponse{
		Receipt:     receipt,
		Signature:   receipt.TransactionRef,
		ExplorerURL: utils.ExplorerURL(receipt.TransactionRef, h.cluster),
	})
}

// RetryReceipt re-runs only the persistence step for a transfer that settled
// but whose receipt write failed. Idempotent: a receipt that made it in after
// all is returned as-is.
func (h *Handler) RetryReceipt(c *gin.Context) {
	var req models.RetryReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	account, ok := h.session.Account()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no account connected"})
		return
	}

	receipt, err := h.pipeline.Persist(c.Request.Context(), account, req.Recipient, req.Amount, req.Message, req.TxHash)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "receipt persist failed", "txHash": req.TxHash})
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ListTips returns the mirror view: the receipt history of the connected
// account, newest first.
func (h *Handler) ListTips(c *gin.Context) {
	if _, ok := h.session.Account(); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no account connected"})
		return
	}
	view := h.mirror.View()
	if view == nil {
		view = models.MirrorView{}
	}
	c.JSON(http.StatusOK, gin.H{"tips": view, "count": len(view)})
}

// writeSubmitError maps the pipeline taxonomy to responses the UI can tell
// apart: definitely-did-not-happen, may-have-happened, and
// happened-but-unrecorded.
func (h *Handler) writeSubmitError(c *gin.Context, err error) {
	var confirmErr *pipeline.ConfirmError
	var persistErr *pipeline.PersistError

	switch {
	case errors.Is(err, pipeline.ErrNotConnected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no account connected"})
	case errors.Is(err, pipeline.ErrInvalidRecipient),
		errors.Is(err, pipeline.ErrInvalidAmount),
		errors.Is(err, pipeline.ErrNoteTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrSubmissionRejected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "submission rejected", "detail": err.Error()})
	case errors.As(err, &confirmErr) && confirmErr.Timeout:
		// Outcome unknown: the transaction may still confirm out of band.
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":       "confirmation timed out",
			"outcome":     "unknown",
			"txHash":      confirmErr.TransactionRef,
			"explorerUrl": utils.ExplorerURL(confirmErr.TransactionRef, h.cluster),
		})
	case errors.Is(err, pipeline.ErrConfirmationFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "transfer failed to confirm", "outcome": "failed"})
	case errors.As(err, &persistErr):
		// Settled on-chain but unrecorded: retry persistence, never resubmit.
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "transfer settled but receipt not recorded",
			"outcome": "settled",
			"txHash":  persistErr.TransactionRef,
			"retry":   "/tips/receipt",
		})
	default:
		h.log.Error("tip submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
