package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateTravelRequest 创建旅行请求
type CreateTravelRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// ListTravels 获取旅行列表
func (h *Handler) ListTravels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.tracker.ListTravels()})
}

// CreateTravel 创建旅行
// POST /api/travels
func (h *Handler) CreateTravel(c *gin.Context) {
	var req CreateTravelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	travel, err := h.tracker.CreateTravel(req.Name, req.Description)
	if err != nil {
		h.respondError(c, err, "Failed to create travel")
		return
	}

	h.logger.Info("Travel created via API", zap.String("travel_id", travel.ID))
	c.JSON(http.StatusCreated, gin.H{"data": travel})
}

// GetTravel 获取旅行详情
func (h *Handler) GetTravel(c *gin.Context) {
	travel, err := h.tracker.GetTravel(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get travel")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": travel})
}

// ListMoves 获取旅行下的移动
func (h *Handler) ListMoves(c *gin.Context) {
	moves, err := h.tracker.ListMoves(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to list moves")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": moves})
}

// GetTravelStats 获取旅行统计
func (h *Handler) GetTravelStats(c *gin.Context) {
	st, err := h.tracker.TravelStatistics(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to compute travel statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": st,
		"display": gin.H{
			"distance_km":       st.DistanceKm(),
			"average_speed_kmh": st.AverageSpeedKmh(),
			"max_speed_kmh":     st.MaxSpeedKmh(),
		},
	})
}

// GetTravelGeoJSON 获取旅行轨迹 (GeoJSON FeatureCollection)
func (h *Handler) GetTravelGeoJSON(c *gin.Context) {
	fc, err := h.tracker.TravelGeoJSON(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to build travel geojson")
		return
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		h.respondError(c, err, "Failed to encode travel geojson")
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

// GetMoveStats 获取移动统计
func (h *Handler) GetMoveStats(c *gin.Context) {
	st, err := h.tracker.MoveStatistics(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to compute move statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": st,
		"display": gin.H{
			"distance_km":       st.DistanceKm(),
			"average_speed_kmh": st.AverageSpeedKmh(),
			"max_speed_kmh":     st.MaxSpeedKmh(),
			"last_heading":      st.LastHeading,
		},
	})
}

// GetMoveGeolocations 获取移动的位置记录 (分页)
func (h *Handler) GetMoveGeolocations(c *gin.Context) {
	geos, err := h.tracker.MoveGeolocations(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to list geolocations")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "500"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 5000 {
		perPage = 500
	}

	total := len(geos)
	// 先比较页号再相乘，避免溢出
	start := total
	if page-1 <= total/perPage {
		start = min((page-1)*perPage, total)
	}
	end := start + perPage
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"data": geos[start:end],
		"pagination": gin.H{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}
