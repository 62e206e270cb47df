package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status       string        `json:"status"`
	Server       ServerInfo    `json:"server"`
	DocumentRoot string        `json:"document_root"`
	Connections  StatsSnapshot `json:"connections"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ServerInfo は待ち受けアドレスの情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Addr string `json:"addr"`
}

// adminHandler は管理用エンドポイントの実装
type adminHandler struct {
	server *Server
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *adminHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *adminHandler) GetStatus(c *gin.Context) {
	cfg := h.server.config

	addr := cfg.ServerAddress()
	if a := h.server.Addr(); a != nil {
		addr = a.String()
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
			Addr: addr,
		},
		DocumentRoot: h.server.resolver.Root(),
		Connections:  h.server.stats.Snapshot(),
		Timestamp:    time.Now(),
	})
}

// adminRouter は管理用エンドポイントのルートを設定する
func (s *Server) adminRouter() *gin.Engine {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		gin.DisableConsoleColor()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	h := &adminHandler{server: s}
	router.GET("/health", h.HealthCheck)
	router.GET("/api/status", h.GetStatus)

	return router
}

// newAdminServer は管理用エンドポイントのHTTPサーバーを作成する
func (s *Server) newAdminServer() *http.Server {
	return &http.Server{
		Addr:         s.config.AdminAddress(),
		Handler:      s.adminRouter(),
		ReadTimeout:  s.config.Server.ReadTimeout.Duration,
		WriteTimeout: s.config.Server.WriteTimeout.Duration,
	}
}
