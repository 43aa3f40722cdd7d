package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"OneTapTip/internal/mirror"
	"OneTapTip/internal/oracle"
	"OneTapTip/internal/pipeline"
	"OneTapTip/internal/session"
)

// Handler is the HTTP surface over the core. It only translates between JSON
// and the components; all behavior lives below.
type Handler struct {
	session  *session.Controller
	pipeline *pipeline.Pipeline
	oracle   *oracle.Oracle
	mirror   *mirror.Mirror
	cluster  string
	log      *zap.Logger
}

func New(s *session.Controller, p *pipeline.Pipeline, o *oracle.Oracle, m *mirror.Mirror, cluster string, log *zap.Logger) *Handler {
	return &Handler{session: s, pipeline: p, oracle: o, mirror: m, cluster: cluster, log: log}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.POST("/session/connect", h.Connect)
	r.POST("/session/disconnect", h.Disconnect)
	r.GET("/balance", h.GetBalance)
	r.GET("/tips", h.ListTips)
	r.POST("/tips", h.SendTip)
	r.POST("/tips/receipt", h.RetryReceipt)
}
