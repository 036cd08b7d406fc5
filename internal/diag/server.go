package diag

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/taoyao-code/actisense-sdk/internal/config"
)

// Stats 会话统计快照，由 /stats 路由输出
type Stats struct {
	Connected              bool   `json:"connected"`
	FramesReceived         uint64 `json:"frames_received"`
	FramesDropped          uint64 `json:"frames_dropped"`
	BemResponsesReceived   uint64 `json:"bem_responses_received"`
	BemResponsesCorrelated uint64 `json:"bem_responses_correlated"`
	PendingRequests        int    `json:"pending_requests"`
}

// Server 诊断 HTTP 服务封装（健康检查、会话统计、Prometheus 指标）
type Server struct {
	srv *http.Server
}

// New 创建并配置 Gin + HTTP Server
func New(cfg cfgpkg.DiagConfig, metricsHandler http.Handler, statsFn func() Stats) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/stats", func(c *gin.Context) {
		if statsFn == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, statsFn())
	})
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(path, gin.WrapH(metricsHandler))
	}

	return &Server{srv: &http.Server{Addr: cfg.Addr, Handler: r}}
}

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
