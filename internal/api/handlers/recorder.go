package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/api/locator"
)

// SelectTravelRequest 选择旅行请求，travel_id 为空表示取消选择
type SelectTravelRequest struct {
	TravelID string `json:"travel_id"`
}

// SetRecordingRequest 开始/停止记录请求
type SetRecordingRequest struct {
	Recording *bool `json:"recording" binding:"required"`
}

// GetRecorder 获取记录器状态
func (h *Handler) GetRecorder(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.tracker.Status()})
}

// SelectTravel 选择当前旅行
// POST /api/recorder/travel
// 正在记录时会先停止当前移动
func (h *Handler) SelectTravel(c *gin.Context) {
	var req SelectTravelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	status, err := h.tracker.SelectTravel(req.TravelID)
	if err != nil {
		h.respondError(c, err, "Failed to select travel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

// SetRecording 开始/停止记录
// POST /api/recorder/recording
// 没有选择旅行时开始记录不会生效，changed 为 false
func (h *Handler) SetRecording(c *gin.Context) {
	var req SetRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	status, changed, err := h.tracker.SetRecording(*req.Recording)
	if err != nil {
		h.respondError(c, err, "Failed to change recording state")
		return
	}

	if changed {
		h.logger.Info("Recording changed via API",
			zap.Bool("recording", status.Recording),
			zap.String("move_id", status.MoveID))
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    status,
		"changed": changed,
	})
}

// GetPosition 获取当前位置
func (h *Handler) GetPosition(c *gin.Context) {
	pos, ok := h.tracker.CurrentPosition()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pos})
}

// PushPosition 推送一次定位 (与位置源消息格式相同)
// POST /api/position
func (h *Handler) PushPosition(c *gin.Context) {
	var pos locator.Position
	if err := c.ShouldBindJSON(&pos); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	geo, err := h.tracker.PushPosition(pos.Fix())
	if err != nil {
		h.respondError(c, err, "Failed to record position")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": geo})
}
