package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/ingest"
	"github.com/langchou/overmove/internal/service"
	"github.com/langchou/overmove/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	tracker  *service.TrackerService
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, tracker *service.TrackerService, wsHub *ws.Hub) *Handler {
	return &Handler{
		logger:  logger,
		tracker: tracker,
		wsHub:   wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 本地控制面，允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 旅行
		api.GET("/travels", h.ListTravels)
		api.POST("/travels", h.CreateTravel)
		api.GET("/travels/:id", h.GetTravel)
		api.GET("/travels/:id/moves", h.ListMoves)
		api.GET("/travels/:id/stats", h.GetTravelStats)
		api.GET("/travels/:id/geojson", h.GetTravelGeoJSON)

		// 移动
		api.GET("/moves/:id/stats", h.GetMoveStats)
		api.GET("/moves/:id/geolocations", h.GetMoveGeolocations)

		// 记录器
		api.GET("/recorder", h.GetRecorder)
		api.POST("/recorder/travel", h.SelectTravel)
		api.POST("/recorder/recording", h.SetRecording)

		// 当前位置
		api.GET("/position", h.GetPosition)
		api.POST("/position", h.PushPosition)

		// 导入导出
		api.GET("/export", h.Export)
		api.POST("/import", h.Import)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"recording":  h.tracker.Status().Recording,
		"ws_clients": h.wsHub.ClientCount(),
	})
}

// respondError 按错误类型返回状态码
func (h *Handler) respondError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrTravelNotFound), errors.Is(err, service.ErrMoveNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrRecordingActive):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidTravel),
		errors.Is(err, service.ErrUnsupportedVersion),
		errors.Is(err, service.ErrMalformedDocument),
		errors.Is(err, ingest.ErrInvalidFix):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
