package api

import (
	"net/http"

	"GachaSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AccountHandler 单个账号的寻访、充值与源石数据
type AccountHandler struct {
	analytics *service.AnalyticsService
	logger    *logrus.Logger
}

func NewAccountHandler(analytics *service.AnalyticsService, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{analytics: analytics, logger: logger}
}

// GachaSummary GET /api/accounts/:uid/gacha
func (h *AccountHandler) GachaSummary(c *gin.Context) {
	res, err := h.analytics.Summary(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeError(c, h.logger, "GachaSummary", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PoolDetail GET /api/accounts/:uid/gacha/pools/:pool_id
func (h *AccountHandler) PoolDetail(c *gin.Context) {
	res, err := h.analytics.PoolDetail(c.Request.Context(), c.Param("uid"), c.Param("pool_id"))
	if err != nil {
		writeError(c, h.logger, "PoolDetail", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PayInfo GET /api/accounts/:uid/pay
func (h *AccountHandler) PayInfo(c *gin.Context) {
	res, err := h.analytics.PayInfo(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeError(c, h.logger, "PayInfo", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DiamondInfo GET /api/accounts/:uid/diamond
func (h *AccountHandler) DiamondInfo(c *gin.Context) {
	res, err := h.analytics.DiamondInfo(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeError(c, h.logger, "DiamondInfo", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
