package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"GachaSync/internal/analytics"
	"GachaSync/internal/cache"
	"GachaSync/internal/catalog"
	"GachaSync/internal/config"
	"GachaSync/internal/model"
	"GachaSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// 排行榜参数
const (
	RankSize       = 10
	RankMinEntries = 2 * RankSize

	luckyMinSix = 5 // 六星数须大于该值
	poolMinSix  = 1
	upMinSix    = 5
)

// 缓存键
const (
	KeyLuckyRank      = "rank:lucky"
	KeyPoolLuckyRank  = "rank:pool"
	KeyUpRank         = "rank:up"
	KeySiteStatistics = "statistics:site"
)

// currentPoolTypes 当期卡池排行的卡池类型优先级
var currentPoolTypes = []string{
	model.PoolTypeLinkage,
	model.PoolTypeLimited,
	model.PoolTypeSingle,
	model.PoolTypeNormal,
	model.PoolTypeClassic,
}

// RankUser 排行榜中的一个账号，名称已按查看者脱敏
type RankUser struct {
	Name  string  `json:"name"`
	Six   int64   `json:"six"`
	Count int64   `json:"count,omitempty"`
	NotUp int64   `json:"not_up,omitempty"`
	Avg   float64 `json:"avg"`
}

// LuckyRank 出货排行：平均六星抽数从低到高
type LuckyRank struct {
	Lucky   []RankUser `json:"lucky"`
	Unlucky []RankUser `json:"unlucky"`
	Pool    string     `json:"pool,omitempty"`
	Time    time.Time  `json:"time"`
}

// UpRank 六星歪率排行
type UpRank struct {
	Up    []RankUser `json:"up"`
	NotUp []RankUser `json:"not_up"`
	Time  time.Time  `json:"time"`
}

// rankRow 缓存中的排行项，展示名按查看者在读取时生成
type rankRow struct {
	AccountID   uint64           `json:"account_id"`
	UID         string           `json:"uid"`
	Nickname    string           `json:"nickname"`
	Owner       string           `json:"owner"`
	OwnerConfig model.UserConfig `json:"owner_config"`
	Six         int64            `json:"six"`
	Count       int64            `json:"count"`
	NotUp       int64            `json:"not_up"`
	Avg         float64          `json:"avg"`
}

type rankTable struct {
	Top    []rankRow `json:"top"`
	Bottom []rankRow `json:"bottom"`
	Pool   string    `json:"pool,omitempty"`
	Time   time.Time `json:"time"`
}

// StatisticsService 全站排行与统计，结果经 SWR 缓存
type StatisticsService struct {
	accounts repository.AccountRepository
	records  repository.RecordRepository
	catalog  *catalog.Catalog
	cache    *cache.SWR
	ttl      config.CacheConfig
	loc      *time.Location
	logger   *logrus.Logger
	now      func() time.Time
}

func NewStatisticsService(
	accounts repository.AccountRepository,
	records repository.RecordRepository,
	cat *catalog.Catalog,
	swr *cache.SWR,
	cfg *config.Config,
	logger *logrus.Logger,
) *StatisticsService {
	return &StatisticsService{
		accounts: accounts,
		records:  records,
		catalog:  cat,
		cache:    swr,
		ttl:      cfg.Cache,
		loc:      cfg.Sync.Location(),
		logger:   logger,
		now:      time.Now,
	}
}

// DisplayName 排行榜中账号的展示名：本人显示昵称加 (Self)，否则按账号所属用户的设置脱敏
func DisplayName(viewer string, owner string, cfg model.UserConfig, uid, nickname string) string {
	if viewer != "" && viewer == owner {
		return nickname + " (Self)"
	}
	var name string
	switch cfg.NameDisplay {
	case model.NameDisplayFull:
		name = nickname
	case model.NameDisplayHideMid:
		name = analytics.HideMid(nickname, 7, "*")
	default:
		name = analytics.HideAll(uid)
	}
	if cfg.NicknameDisplay {
		name += fmt.Sprintf(" (%s)", cfg.Nickname)
	}
	return name
}

func (r rankRow) user(viewer string) RankUser {
	return RankUser{
		Name:  DisplayName(viewer, r.Owner, r.OwnerConfig, r.UID, r.Nickname),
		Six:   r.Six,
		Count: r.Count,
		NotUp: r.NotUp,
		Avg:   r.Avg,
	}
}

func usersOf(rows []rankRow, viewer string) []RankUser {
	out := make([]RankUser, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user(viewer))
	}
	return out
}

// optedIn 所属用户未禁用且开启了对应选项的账号
func (s *StatisticsService) optedIn(ctx context.Context, want func(model.UserConfig) bool) (map[uint64]*model.Account, []uint64, error) {
	list, err := s.accounts.ListWithOwner(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("查询账号失败: %w", err)
	}
	byID := make(map[uint64]*model.Account, len(list))
	ids := make([]uint64, 0, len(list))
	for _, acc := range list {
		if acc.Owner == nil || acc.Owner.Disabled || !want(acc.Owner.Settings()) {
			continue
		}
		byID[acc.ID] = acc
		ids = append(ids, acc.ID)
	}
	return byID, ids, nil
}

func luckyOptIn(c model.UserConfig) bool { return c.IsLuckyRank }

// buildTable 按 Avg 升序排列（相同时按账号ID），不足 RankMinEntries 时返回 nil
func (s *StatisticsService) buildTable(rows []rankRow) *rankTable {
	if len(rows) < RankMinEntries {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Avg != rows[j].Avg {
			return rows[i].Avg < rows[j].Avg
		}
		return rows[i].AccountID < rows[j].AccountID
	})
	bottom := make([]rankRow, 0, RankSize)
	for i := len(rows) - 1; i >= len(rows)-RankSize; i-- {
		bottom = append(bottom, rows[i])
	}
	return &rankTable{
		Top:    append([]rankRow(nil), rows[:RankSize]...),
		Bottom: bottom,
		Time:   s.now().In(s.loc),
	}
}

func newRankRow(acc *model.Account, t repository.DrawTally) rankRow {
	return rankRow{
		AccountID:   acc.ID,
		UID:         acc.UID,
		Nickname:    acc.Nickname,
		Owner:       acc.Owner.Username,
		OwnerConfig: acc.Owner.Settings(),
		Six:         t.Six,
		Count:       t.Draws,
	}
}

func (s *StatisticsService) computeLucky(ctx context.Context) (*rankTable, error) {
	byID, ids, err := s.optedIn(ctx, luckyOptIn)
	if err != nil {
		return nil, err
	}
	tallies, err := s.records.TallyDraws(ctx, repository.TallyFilter{AccountIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("汇总抽数失败: %w", err)
	}
	var rows []rankRow
	for _, t := range tallies {
		if t.Six <= luckyMinSix {
			continue
		}
		row := newRankRow(byID[t.AccountID], t)
		row.Avg = float64(t.Draws) / float64(t.Six)
		rows = append(rows, row)
	}
	return s.buildTable(rows), nil
}

// CurrentPool 当期排行使用的卡池：按类型优先级取当期卡池列表中第一个匹配的
func CurrentPool(snap *catalog.Snapshot) (string, bool) {
	process := snap.Process()
	for _, typ := range currentPoolTypes {
		for _, id := range process {
			if p, ok := snap.Lookup(id); ok && p.Type == typ {
				return id, true
			}
		}
	}
	return "", false
}

func (s *StatisticsService) computePoolLucky(ctx context.Context) (*rankTable, error) {
	pool, ok := CurrentPool(s.catalog.Snapshot())
	if !ok {
		return nil, nil
	}
	byID, ids, err := s.optedIn(ctx, luckyOptIn)
	if err != nil {
		return nil, err
	}
	tallies, err := s.records.TallyDraws(ctx, repository.TallyFilter{AccountIDs: ids, PoolIDs: []string{pool}})
	if err != nil {
		return nil, fmt.Errorf("汇总卡池抽数失败: %w", err)
	}
	var rows []rankRow
	for _, t := range tallies {
		if t.Six <= poolMinSix {
			continue
		}
		row := newRankRow(byID[t.AccountID], t)
		row.Avg = float64(t.Draws) / float64(t.Six)
		rows = append(rows, row)
	}
	table := s.buildTable(rows)
	if table != nil {
		table.Pool = pool
	}
	return table, nil
}

func (s *StatisticsService) computeUp(ctx context.Context) (*rankTable, error) {
	upPools := s.catalog.Snapshot().UpPoolIDs()
	if len(upPools) == 0 {
		return nil, nil
	}
	byID, ids, err := s.optedIn(ctx, luckyOptIn)
	if err != nil {
		return nil, err
	}
	tallies, err := s.records.TallyDraws(ctx, repository.TallyFilter{AccountIDs: ids, PoolIDs: upPools})
	if err != nil {
		return nil, fmt.Errorf("汇总UP卡池抽数失败: %w", err)
	}
	var rows []rankRow
	for _, t := range tallies {
		if t.SixKnown <= upMinSix {
			continue
		}
		row := newRankRow(byID[t.AccountID], t)
		row.Six = t.SixKnown
		row.Count = 0
		row.NotUp = t.SixNotUp
		row.Avg = float64(t.SixNotUp) / float64(t.SixKnown)
		rows = append(rows, row)
	}
	return s.buildTable(rows), nil
}

// LuckyRank 全部寻访的平均六星抽数排行；参与账号不足时返回 nil
func (s *StatisticsService) LuckyRank(ctx context.Context, viewer string) (*LuckyRank, error) {
	table, err := cache.GetOrRefresh(ctx, s.cache, KeyLuckyRank, s.ttl.RankTTL, s.computeLucky)
	if err != nil || table == nil {
		return nil, err
	}
	return &LuckyRank{Lucky: usersOf(table.Top, viewer), Unlucky: usersOf(table.Bottom, viewer), Time: table.Time}, nil
}

// PoolLuckyRank 当期卡池的平均六星抽数排行
func (s *StatisticsService) PoolLuckyRank(ctx context.Context, viewer string) (*LuckyRank, error) {
	table, err := cache.GetOrRefresh(ctx, s.cache, KeyPoolLuckyRank, s.ttl.RankTTL, s.computePoolLucky)
	if err != nil || table == nil {
		return nil, err
	}
	return &LuckyRank{Lucky: usersOf(table.Top, viewer), Unlucky: usersOf(table.Bottom, viewer), Pool: table.Pool, Time: table.Time}, nil
}

// UpRank UP卡池六星歪率排行
func (s *StatisticsService) UpRank(ctx context.Context, viewer string) (*UpRank, error) {
	table, err := cache.GetOrRefresh(ctx, s.cache, KeyUpRank, s.ttl.RankTTL, s.computeUp)
	if err != nil || table == nil {
		return nil, err
	}
	return &UpRank{Up: usersOf(table.Top, viewer), NotUp: usersOf(table.Bottom, viewer), Time: table.Time}, nil
}
