package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 导入文件大小上限
const maxImportBytes = 256 << 20

// Export 导出全部数据
// GET /api/export
func (h *Handler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.tracker.Export(&buf); err != nil {
		h.respondError(c, err, "Failed to export data")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="overmove-export.json"`)
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// Import 导入数据 (支持旧版本文档)
// POST /api/import
// 会替换全部旅行、移动与位置记录
func (h *Handler) Import(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	report, err := h.tracker.Import(c.Request.Context(), data)
	if err != nil {
		h.respondError(c, err, "Failed to import data")
		return
	}

	h.logger.Info("Data imported via API",
		zap.String("source_version", report.SourceVersion),
		zap.Int("dropped", report.Dropped()))
	c.JSON(http.StatusOK, gin.H{
		"message": "Data imported",
		"report":  report,
	})
}
