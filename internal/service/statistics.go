package service

import (
	"context"
	"fmt"
	"time"

	"GachaSync/internal/analytics"
	"GachaSync/internal/cache"
	"GachaSync/internal/model"

	"github.com/shopspring/decimal"
)

// SiteAccountInfo 参与统计的账号数
type SiteAccountInfo struct {
	Total        int     `json:"account_number"`
	Available    int     `json:"available_account_number"`
	AvailableAvg float64 `json:"available_avg"`
}

// SiteDiamondInfo 全站源石汇总，Now 为各账号当前余额之和
type SiteDiamondInfo struct {
	Now      int64             `json:"now"`
	TotalGet int64             `json:"total_get"`
	TotalUse int64             `json:"total_use"`
	TypeGet  []OperationAmount `json:"type_get"`
	TypeUse  []OperationAmount `json:"type_use"`
}

// SitePullInfo 全站寻访汇总，LuckyAvg 为总抽数除以各星级出货数
type SitePullInfo struct {
	LuckyAvg     map[int]float64    `json:"lucky_avg"`
	RarityTotals map[int]int        `json:"rarity_totals"`
	Total        int                `json:"total"`
	MonthCounts  map[string]int     `json:"month_counts"`
	PoolCounts   map[string]int     `json:"pool_counts"`
	NotUpRate    map[string]float64 `json:"not_up_rate"`
}

// SiteStatistics 全站统计
type SiteStatistics struct {
	Accounts SiteAccountInfo `json:"account_info"`
	Pulls    SitePullInfo    `json:"osr_info"`
	Diamond  SiteDiamondInfo `json:"diamond_info"`
	TotalPay decimal.Decimal `json:"total_pay_money"`
	Time     time.Time       `json:"time"`
}

// SiteStatistics 开启统计的用户的全部账号的汇总
func (s *StatisticsService) SiteStatistics(ctx context.Context) (*SiteStatistics, error) {
	return cache.GetOrRefresh(ctx, s.cache, KeySiteStatistics, s.ttl.StatisticsTTL, s.computeSite)
}

func (s *StatisticsService) computeSite(ctx context.Context) (*SiteStatistics, error) {
	byID, ids, err := s.optedIn(ctx, func(c model.UserConfig) bool { return c.IsStatistics })
	if err != nil {
		return nil, err
	}
	out := &SiteStatistics{TotalPay: decimal.Zero, Time: s.now().In(s.loc)}

	out.Accounts.Total = len(ids)
	for _, acc := range byID {
		if acc.Available {
			out.Accounts.Available++
		}
	}
	if out.Accounts.Total > 0 {
		out.Accounts.AvailableAvg = float64(out.Accounts.Available) / float64(out.Accounts.Total)
	}

	pays, err := s.records.ListPayRecords(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("查询充值记录失败: %w", err)
	}
	for _, p := range pays {
		out.TotalPay = out.TotalPay.Add(CentsToYuan(p.Amount))
	}

	diamonds, err := s.records.ListDiamondRecords(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("查询源石记录失败: %w", err)
	}
	out.Diamond = summarizeSiteDiamonds(diamonds)

	pulls, err := s.records.ListGachaRecordsByAccounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询寻访记录失败: %w", err)
	}
	out.Pulls = s.summarizeSitePulls(pulls)
	return out, nil
}

// summarizeSiteDiamonds 记录按时间倒序，每个账号遇到的第一条即当前余额
func summarizeSiteDiamonds(list []*model.DiamondRecord) SiteDiamondInfo {
	var out SiteDiamondInfo
	seen := make(map[uint64]struct{})
	gets, uses := make(map[string]int64), make(map[string]int64)
	for _, d := range list {
		if _, ok := seen[d.AccountID]; !ok {
			seen[d.AccountID] = struct{}{}
			out.Now += d.After
		}
		change := d.Change()
		switch {
		case change > 0:
			out.TotalGet += change
			gets[d.Operation] += change
		case change < 0:
			out.TotalUse -= change
			uses[d.Operation] -= change
		}
	}
	out.TypeGet = sortedAmounts(gets)
	out.TypeUse = sortedAmounts(uses)
	return out
}

func (s *StatisticsService) summarizeSitePulls(list []*model.GachaRecord) SitePullInfo {
	snap := s.catalog.Snapshot()
	out := SitePullInfo{
		LuckyAvg:     make(map[int]float64, len(analytics.Rarities)),
		RarityTotals: make(map[int]int, len(analytics.Rarities)),
		MonthCounts:  make(map[string]int),
		PoolCounts:   make(map[string]int),
		NotUpRate:    make(map[string]float64),
	}
	for _, r := range analytics.Rarities {
		out.RarityTotals[r] = 0
	}
	tallies := make(map[string]analytics.UpTally)
	var total analytics.UpTally
	for _, rec := range list {
		if rec.PoolID == nil {
			continue
		}
		pool := snap.Info(rec.PoolID)
		if pool.IsUnknown() {
			continue
		}
		n := len(rec.Items)
		out.Total += n
		out.PoolCounts[pool.ID] += n
		out.MonthCounts[time.Unix(rec.Time, 0).In(s.loc).Format("2006-01")] += n
		for _, item := range rec.Items {
			out.RarityTotals[item.Rarity]++
			if item.Rarity == analytics.MaxRarity && pool.IsUpPool() {
				t := tallies[pool.ID]
				t.Add(item.Up)
				tallies[pool.ID] = t
				total.Add(item.Up)
			}
		}
	}
	for _, r := range analytics.Rarities {
		if hits := out.RarityTotals[r]; hits > 0 {
			out.LuckyAvg[r] = float64(out.Total) / float64(hits)
		} else {
			out.LuckyAvg[r] = 0
		}
	}
	for id, t := range tallies {
		if t.Six > 0 {
			out.NotUpRate[id] = t.Rate()
		}
	}
	out.NotUpRate[NotUpTotalKey] = total.Rate()
	return out
}
