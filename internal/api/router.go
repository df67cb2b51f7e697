package api

import "github.com/gin-gonic/gin"

// Register 注册全部路由
func Register(r gin.IRouter, sync *SyncHandler, accounts *AccountHandler, stats *StatisticsHandler) {
	g := r.Group("/api")

	g.POST("/accounts", sync.Bind)
	g.POST("/accounts/:uid/refresh", sync.Refresh)
	g.POST("/accounts/:uid/import", sync.Import)
	g.POST("/catalog/refresh", sync.RefreshCatalog)

	g.GET("/accounts/:uid/gacha", accounts.GachaSummary)
	g.GET("/accounts/:uid/gacha/pools/:pool_id", accounts.PoolDetail)
	g.GET("/accounts/:uid/pay", accounts.PayInfo)
	g.GET("/accounts/:uid/diamond", accounts.DiamondInfo)

	g.GET("/rank/lucky", stats.LuckyRank)
	g.GET("/rank/pool", stats.PoolLuckyRank)
	g.GET("/rank/up", stats.UpRank)
	g.GET("/statistics", stats.SiteStatistics)
}
