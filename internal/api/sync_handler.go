package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"GachaSync/internal/model"
	"GachaSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxImportSize 导入文件大小上限
const maxImportSize = 32 << 20

// CatalogRefresher 卡池信息刷新，由 catalog.Loader 实现
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// SyncHandler 账号绑定、刷新与导入
type SyncHandler struct {
	syncService   *service.SyncService
	importService *service.ImportService
	catalog       CatalogRefresher
	logger        *logrus.Logger
}

func NewSyncHandler(sync *service.SyncService, importer *service.ImportService, catalog CatalogRefresher, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		syncService:   sync,
		importService: importer,
		catalog:       catalog,
		logger:        logger,
	}
}

type bindRequest struct {
	Channel string `json:"channel" binding:"required"`
	Token   string `json:"token" binding:"required"`
}

// Bind 绑定账号，X-User 存在时账号归属该用户
// POST /api/accounts
func (h *SyncHandler) Bind(c *gin.Context) {
	var req bindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	channel, err := model.ParseChannel(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ownerID *uint64
	if name := c.GetHeader(ViewerHeader); name != "" {
		u, err := h.syncService.EnsureUser(c.Request.Context(), name)
		if err != nil {
			writeError(c, h.logger, "EnsureUser", err)
			return
		}
		ownerID = &u.ID
	}

	acc, err := h.syncService.Bind(c.Request.Context(), channel, strings.TrimSpace(req.Token), ownerID)
	if err != nil {
		writeError(c, h.logger, "Bind", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": acc.UID, "nickname": acc.Nickname, "channel": acc.Channel.String()})
}

type refreshRequest struct {
	Force bool `json:"force" form:"force"`
}

// Refresh 立即刷新账号数据，force 可通过请求体 {"force": true} 或 ?force=1 指定
// POST /api/accounts/:uid/refresh
func (h *SyncHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	res, err := h.syncService.RefreshByUID(c.Request.Context(), c.Param("uid"), req.Force)
	if err != nil {
		writeError(c, h.logger, "Refresh", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Import 导入带签名的导出文件，支持 multipart 的 file 字段或直接以请求体上传
// POST /api/accounts/:uid/import
func (h *SyncHandler) Import(c *gin.Context) {
	acc, err := h.syncService.Account(c.Request.Context(), c.Param("uid"))
	if err != nil {
		writeError(c, h.logger, "Import", err)
		return
	}

	var body []byte
	if fh, ferr := c.FormFile("file"); ferr == nil {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		body, err = io.ReadAll(io.LimitReader(f, maxImportSize))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		body, err = io.ReadAll(io.LimitReader(c.Request.Body, maxImportSize))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := h.importService.Import(c.Request.Context(), body, acc)
	if err != nil {
		writeError(c, h.logger, "Import", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RefreshCatalog 立即重新下载卡池信息
// POST /api/catalog/refresh
func (h *SyncHandler) RefreshCatalog(c *gin.Context) {
	if err := h.catalog.Refresh(c.Request.Context()); err != nil {
		writeError(c, h.logger, "RefreshCatalog", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "卡池信息已更新"})
}
