package api

import (
	"errors"
	"net/http"

	"GachaSync/internal/adapter"
	"GachaSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ViewerHeader 查看者用户名，排行榜按它决定是否显示 (Self)
const ViewerHeader = "X-User"

// writeError 按错误类型返回状态码
func writeError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	var ie *service.ImportError
	switch {
	case errors.As(err, &ie):
		c.JSON(http.StatusBadRequest, gin.H{"error": "arkgacha_import." + ie.Reason})
		return
	case errors.Is(err, service.ErrAccountNotFound), errors.Is(err, service.ErrPoolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrAccountUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, adapter.ErrTokenRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	logger.WithError(err).Error(op + " failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// ranked 排行数据不足时 available 为 false，与空排行区分
func ranked(c *gin.Context, data interface{}, available bool) {
	if !available {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "data": data})
}
