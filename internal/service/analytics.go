package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"GachaSync/internal/analytics"
	"GachaSync/internal/catalog"
	"GachaSync/internal/model"
	"GachaSync/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NotUpTotalKey 歪率统计中汇总项的键
const NotUpTotalKey = "total"

// TimeRange 记录的时间范围
type TimeRange struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// PullSummary 账号寻访总览
type PullSummary struct {
	LuckyAvg     map[int]float64              `json:"lucky_avg"`     // 各星级平均出货抽数（只计已完成的保底）
	PityProgress map[string]map[int]int       `json:"pity_progress"` // 各保底分组当前未出货的抽数
	PoolCounts   map[string]int               `json:"pool_counts"`   // 各卡池抽数
	RarityTotals map[int]int                  `json:"rarity_totals"`
	Total        int                          `json:"total"`       // 已知卡池的抽数
	GrossTotal   int                          `json:"gross_total"` // 含未知卡池
	MonthCounts  map[string]int               `json:"month_counts"`
	Pools        []string                     `json:"pools"` // 抽过的卡池，最近的在前
	NotUpRate    map[string]float64           `json:"not_up_rate"`
	NotUp        map[string]analytics.UpTally `json:"not_up"`
	Time         TimeRange                    `json:"time"`
}

// DrawInfo 单卡池视图中的一次五星/六星出货
type DrawInfo struct {
	Time   time.Time     `json:"time"`
	Name   string        `json:"name"`
	Rarity int           `json:"rarity"`
	Count  int           `json:"count"`
	IsNew  bool          `json:"is_new"`
	IsUp   model.UpState `json:"is_up"`
}

// PoolDetail 单卡池明细
type PoolDetail struct {
	Pool         model.Pool        `json:"pool_info"`
	Total        int               `json:"total"`
	RarityCounts map[int]int       `json:"rarity_counts"`
	LuckyAvg     map[int]float64   `json:"lucky_avg"` // 未出货的尾段计入分子
	PityProgress map[int]int       `json:"pity_progress"`
	DayCounts    map[string]int    `json:"day_counts"`
	NotUp        analytics.UpTally `json:"not_up"`
	SixRecords   []DrawInfo        `json:"six_records"`  // 最近的在前
	FiveRecords  []DrawInfo        `json:"five_records"` // 最近的在前
}

// PayEntry 单笔充值，金额单位为元
type PayEntry struct {
	OrderID  string          `json:"order_id"`
	Time     time.Time       `json:"time"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Platform model.Platform  `json:"platform"`
}

// PayLedger 充值记录
type PayLedger struct {
	Total   decimal.Decimal `json:"total_money"`
	Records []PayEntry      `json:"pay_info"`
}

// OperationAmount 某种变动原因的源石总量
type OperationAmount struct {
	Operation string `json:"type"`
	Number    int64  `json:"number"`
}

// DiamondLedger 源石记录汇总
type DiamondLedger struct {
	Now      int64             `json:"now"`
	TotalGet int64             `json:"total_get"`
	TotalUse int64             `json:"total_use"`
	TypeGet  []OperationAmount `json:"type_get"`
	TypeUse  []OperationAmount `json:"type_use"`
	Day      map[string]int64  `json:"day"`
	Time     TimeRange         `json:"time"`
}

// CentsToYuan 金额由分转为元
func CentsToYuan(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// AnalyticsService 账号数据的只读统计
type AnalyticsService struct {
	accounts repository.AccountRepository
	records  repository.RecordRepository
	catalog  *catalog.Catalog
	loc      *time.Location
	logger   *logrus.Logger
}

func NewAnalyticsService(
	accounts repository.AccountRepository,
	records repository.RecordRepository,
	cat *catalog.Catalog,
	loc *time.Location,
	logger *logrus.Logger,
) *AnalyticsService {
	if loc == nil {
		loc = time.Local
	}
	return &AnalyticsService{accounts: accounts, records: records, catalog: cat, loc: loc, logger: logger}
}

func (s *AnalyticsService) account(ctx context.Context, uid string) (*model.Account, error) {
	return findAccount(ctx, s.accounts, uid)
}

func (s *AnalyticsService) at(ts int64) time.Time {
	return time.Unix(ts, 0).In(s.loc)
}

// Summary 账号寻访总览，按 CountType 分组计算保底
func (s *AnalyticsService) Summary(ctx context.Context, uid string) (*PullSummary, error) {
	acc, err := s.account(ctx, uid)
	if err != nil {
		return nil, err
	}
	list, err := s.records.ListGachaRecords(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("查询寻访记录失败: %w", err)
	}
	return summarize(s.catalog.Snapshot(), list, s.loc), nil
}

func summarize(snap *catalog.Snapshot, list []*model.GachaRecord, loc *time.Location) *PullSummary {
	out := &PullSummary{
		PityProgress: make(map[string]map[int]int),
		PoolCounts:   make(map[string]int),
		RarityTotals: make(map[int]int, len(analytics.Rarities)),
		MonthCounts:  make(map[string]int),
		NotUpRate:    make(map[string]float64),
		NotUp:        make(map[string]analytics.UpTally),
		Pools:        []string{},
	}
	for _, r := range analytics.Rarities {
		out.RarityTotals[r] = 0
	}
	if len(list) > 0 {
		out.Time = TimeRange{Start: time.Unix(list[0].Time, 0).In(loc), End: time.Unix(list[len(list)-1].Time, 0).In(loc)}
	}

	counters := make(map[string]*analytics.PityCounter)
	seen := make(map[string]struct{})
	var total analytics.UpTally
	for _, rec := range list {
		out.GrossTotal += len(rec.Items)
		if rec.PoolID == nil {
			continue
		}
		pool := snap.Info(rec.PoolID)
		if pool.IsUnknown() {
			continue
		}
		if _, ok := seen[pool.ID]; !ok {
			seen[pool.ID] = struct{}{}
			out.Pools = append(out.Pools, pool.ID)
		}
		bucket := catalog.CountType(pool)
		counter, ok := counters[bucket]
		if !ok {
			counter = &analytics.PityCounter{}
			counters[bucket] = counter
		}

		n := len(rec.Items)
		out.Total += n
		out.PoolCounts[pool.ID] += n
		out.MonthCounts[time.Unix(rec.Time, 0).In(loc).Format("2006-01")] += n

		for _, item := range rec.Items {
			out.RarityTotals[item.Rarity]++
			counter.Add(item.Rarity)
			if item.Rarity == analytics.MaxRarity && pool.IsUpPool() {
				t := out.NotUp[pool.ID]
				t.Add(item.Up)
				out.NotUp[pool.ID] = t
				total.Add(item.Up)
			}
		}
	}

	all := make([]*analytics.PityCounter, 0, len(counters))
	for bucket, c := range counters {
		all = append(all, c)
		out.PityProgress[bucket] = c.Progress()
	}
	out.LuckyAvg = analytics.AverageCompleted(all...)

	for id, t := range out.NotUp {
		if t.Six == 0 {
			delete(out.NotUp, id)
			continue
		}
		out.NotUpRate[id] = t.Rate()
	}
	out.NotUp[NotUpTotalKey] = total
	out.NotUpRate[NotUpTotalKey] = total.Rate()

	for i, j := 0, len(out.Pools)-1; i < j; i, j = i+1, j-1 {
		out.Pools[i], out.Pools[j] = out.Pools[j], out.Pools[i]
	}
	return out
}

// PoolDetail 单卡池逐抽明细，卡池不在当前卡池信息中时返回 ErrPoolNotFound
func (s *AnalyticsService) PoolDetail(ctx context.Context, uid, poolID string) (*PoolDetail, error) {
	pool, ok := s.catalog.Snapshot().Lookup(poolID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	acc, err := s.account(ctx, uid)
	if err != nil {
		return nil, err
	}
	list, err := s.records.ListGachaRecordsByPool(ctx, acc.ID, poolID)
	if err != nil {
		return nil, fmt.Errorf("查询卡池寻访记录失败: %w", err)
	}

	out := &PoolDetail{
		Pool:         pool,
		RarityCounts: make(map[int]int, len(analytics.Rarities)),
		DayCounts:    make(map[string]int),
		SixRecords:   []DrawInfo{},
		FiveRecords:  []DrawInfo{},
	}
	for _, r := range analytics.Rarities {
		out.RarityCounts[r] = 0
	}
	counter := &analytics.PityCounter{}
	for _, rec := range list {
		at := s.at(rec.Time)
		out.Total += len(rec.Items)
		out.DayCounts[at.Format("2006-01-02")] += len(rec.Items)
		for _, item := range rec.Items {
			out.RarityCounts[item.Rarity]++
			count := counter.Add(item.Rarity)
			info := DrawInfo{Time: at, Name: item.Name, Rarity: item.Rarity, Count: count, IsNew: item.IsNew, IsUp: item.Up}
			switch item.Rarity {
			case 6:
				out.SixRecords = append(out.SixRecords, info)
				if pool.IsUpPool() {
					out.NotUp.Add(item.Up)
				}
			case 5:
				out.FiveRecords = append(out.FiveRecords, info)
			}
		}
	}
	reverseDraws(out.SixRecords)
	reverseDraws(out.FiveRecords)
	out.LuckyAvg = analytics.AverageWithTrailing(counter)
	out.PityProgress = counter.Progress()
	return out, nil
}

func reverseDraws(list []DrawInfo) {
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
}

// PayInfo 充值记录，最近的在前
func (s *AnalyticsService) PayInfo(ctx context.Context, uid string) (*PayLedger, error) {
	acc, err := s.account(ctx, uid)
	if err != nil {
		return nil, err
	}
	list, err := s.records.ListPayRecords(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("查询充值记录失败: %w", err)
	}
	out := &PayLedger{Total: decimal.Zero, Records: make([]PayEntry, 0, len(list))}
	for _, p := range list {
		amount := CentsToYuan(p.Amount)
		out.Total = out.Total.Add(amount)
		out.Records = append(out.Records, PayEntry{
			OrderID:  p.OrderID,
			Time:     s.at(p.PayTime),
			Name:     p.Name,
			Amount:   amount,
			Platform: p.Platform,
		})
	}
	return out, nil
}

// DiamondInfo 源石记录汇总：当前余额取最近一条的变动后数量
func (s *AnalyticsService) DiamondInfo(ctx context.Context, uid string) (*DiamondLedger, error) {
	acc, err := s.account(ctx, uid)
	if err != nil {
		return nil, err
	}
	list, err := s.records.ListDiamondRecords(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("查询源石记录失败: %w", err)
	}
	out := &DiamondLedger{Day: make(map[string]int64)}
	if len(list) == 0 {
		out.TypeGet, out.TypeUse = []OperationAmount{}, []OperationAmount{}
		return out, nil
	}
	out.Now = list[0].After
	out.Time = TimeRange{Start: s.at(list[len(list)-1].OperateTime), End: s.at(list[0].OperateTime)}

	gets, uses := make(map[string]int64), make(map[string]int64)
	for _, d := range list {
		change := d.Change()
		switch {
		case change > 0:
			out.TotalGet += change
			gets[d.Operation] += change
		case change < 0:
			out.TotalUse -= change
			uses[d.Operation] -= change
		}
		out.Day[s.at(d.OperateTime).Format("2006-01-02")] += change
	}
	out.TypeGet = sortedAmounts(gets)
	out.TypeUse = sortedAmounts(uses)
	return out, nil
}

func sortedAmounts(m map[string]int64) []OperationAmount {
	out := make([]OperationAmount, 0, len(m))
	for op, n := range m {
		out = append(out, OperationAmount{Operation: op, Number: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number > out[j].Number
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}
