package api

import (
	"net/http"

	"GachaSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatisticsHandler 全站排行与统计
type StatisticsHandler struct {
	statistics *service.StatisticsService
	logger     *logrus.Logger
}

func NewStatisticsHandler(statistics *service.StatisticsService, logger *logrus.Logger) *StatisticsHandler {
	return &StatisticsHandler{statistics: statistics, logger: logger}
}

// LuckyRank GET /api/rank/lucky
func (h *StatisticsHandler) LuckyRank(c *gin.Context) {
	res, err := h.statistics.LuckyRank(c.Request.Context(), c.GetHeader(ViewerHeader))
	if err != nil {
		writeError(c, h.logger, "LuckyRank", err)
		return
	}
	ranked(c, res, res != nil)
}

// PoolLuckyRank GET /api/rank/pool
func (h *StatisticsHandler) PoolLuckyRank(c *gin.Context) {
	res, err := h.statistics.PoolLuckyRank(c.Request.Context(), c.GetHeader(ViewerHeader))
	if err != nil {
		writeError(c, h.logger, "PoolLuckyRank", err)
		return
	}
	ranked(c, res, res != nil)
}

// UpRank GET /api/rank/up
func (h *StatisticsHandler) UpRank(c *gin.Context) {
	res, err := h.statistics.UpRank(c.Request.Context(), c.GetHeader(ViewerHeader))
	if err != nil {
		writeError(c, h.logger, "UpRank", err)
		return
	}
	ranked(c, res, res != nil)
}

// SiteStatistics GET /api/statistics
func (h *StatisticsHandler) SiteStatistics(c *gin.Context) {
	res, err := h.statistics.SiteStatistics(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "SiteStatistics", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
