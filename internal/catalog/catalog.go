// Package catalog 卡池信息：按名称和时间区间把寻访记录归属到具体卡池。
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"GachaSync/internal/model"
)

// 计数分组名称
const (
	CountTypeStandard = "标准寻访"
	CountTypeClassic  = "中坚寻访"
)

// document 卡池信息JSON：{pool: {id: {...}}, process: [ids]}
type document struct {
	Pool    map[string]rawPool `json:"pool"`
	Process []string           `json:"process"`
}

// rawPool 兼容下划线与驼峰两种字段名
type rawPool struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	RealName            string         `json:"real_name"`
	RealNameAlt         string         `json:"realName"`
	Type                string         `json:"type"`
	Start               int64          `json:"start"`
	End                 int64          `json:"end"`
	UpCharInfo          []string       `json:"up_char_info"`
	UpOperators         []string       `json:"upOperators"`
	LimitedCharInfo     []string       `json:"limited_char_info"`
	WeightUpCharInfo    map[string]int `json:"weight_up_char_info"`
	WeightedUpOperators map[string]int `json:"weightedUpOperators"`
}

func (r rawPool) toPool(key string) model.Pool {
	p := model.Pool{
		ID:                  r.ID,
		Name:                r.Name,
		RealName:            r.RealName,
		Type:                r.Type,
		Start:               r.Start,
		End:                 r.End,
		UpOperators:         r.UpCharInfo,
		LimitedOperators:    r.LimitedCharInfo,
		WeightedUpOperators: r.WeightUpCharInfo,
	}
	if p.ID == "" {
		p.ID = key
	}
	if p.RealName == "" {
		p.RealName = r.RealNameAlt
	}
	if p.RealName == "" {
		p.RealName = p.Name
	}
	if p.UpOperators == nil {
		p.UpOperators = r.UpOperators
	}
	if p.WeightedUpOperators == nil {
		p.WeightedUpOperators = r.WeightedUpOperators
	}
	return p
}

// interval 半开区间 [start, end)
type interval struct {
	start, end int64
	id         string
}

// Snapshot 一份不可变的卡池信息，构建后只读
type Snapshot struct {
	pools     map[string]model.Pool
	byName    map[string][]string
	intervals []interval // 按 start 升序
	process   []string
	conflicts []string
	raw       []byte
}

// Parse 解析卡池信息JSON并建立索引
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析卡池信息失败: %w", err)
	}
	if doc.Pool == nil {
		return nil, fmt.Errorf("卡池信息缺少 pool 字段")
	}
	pools := make([]model.Pool, 0, len(doc.Pool))
	for key, rp := range doc.Pool {
		pools = append(pools, rp.toPool(key))
	}
	s := NewSnapshot(pools, doc.Process)
	s.raw = append([]byte(nil), data...)
	return s, nil
}

// NewSnapshot 由卡池列表构建快照
func NewSnapshot(pools []model.Pool, process []string) *Snapshot {
	s := &Snapshot{
		pools:     make(map[string]model.Pool, len(pools)),
		byName:    make(map[string][]string),
		intervals: make([]interval, 0, len(pools)),
		process:   append([]string(nil), process...),
	}
	for _, p := range pools {
		s.pools[p.ID] = p
	}
	ids := make([]string, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := s.pools[id]
		s.intervals = append(s.intervals, interval{start: p.Start, end: p.End + 1, id: id})
		s.byName[p.RealName] = append(s.byName[p.RealName], id)
	}
	sort.SliceStable(s.intervals, func(i, j int) bool { return s.intervals[i].start < s.intervals[j].start })
	s.conflicts = s.findConflicts()
	return s
}

// findConflicts 同名卡池时间重叠属于卡池信息错误，记录下来供加载时告警
func (s *Snapshot) findConflicts() []string {
	var out []string
	for name, ids := range s.byName {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				a, b := s.pools[ids[i]], s.pools[ids[j]]
				if a.Start <= b.End && b.Start <= a.End {
					out = append(out, fmt.Sprintf("%s: %s/%s", name, a.ID, b.ID))
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// Conflicts 同名且时间重叠的卡池
func (s *Snapshot) Conflicts() []string { return s.conflicts }

// Len 卡池数量
func (s *Snapshot) Len() int { return len(s.pools) }

// Raw 原始JSON（用于落盘）
func (s *Snapshot) Raw() []byte { return s.raw }

// ActiveAt 返回 ts 时刻开放的卡池ID，按开始时间与 ts 的距离排序
func (s *Snapshot) ActiveAt(ts int64) []string {
	hi := sort.Search(len(s.intervals), func(i int) bool { return s.intervals[i].start > ts })
	var active []interval
	for _, iv := range s.intervals[:hi] {
		if ts < iv.end {
			active = append(active, iv)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		di, dj := abs(active[i].start-ts), abs(active[j].start-ts)
		if di != dj {
			return di < dj
		}
		return active[i].id < active[j].id
	})
	ids := make([]string, len(active))
	for i, iv := range active {
		ids[i] = iv.id
	}
	return ids
}

// Resolve 按卡池名称和寻访时间定位卡池；找不到返回 false
func (s *Snapshot) Resolve(realName string, ts int64) (string, bool) {
	candidates := s.byName[realName]
	if len(candidates) == 0 {
		return "", false
	}
	named := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		named[id] = struct{}{}
	}
	for _, id := range s.ActiveAt(ts) {
		if _, ok := named[id]; ok {
			return id, true
		}
	}
	return "", false
}

// Info 卡池详情；nil 或不存在时返回未知卡池
func (s *Snapshot) Info(poolID *string) model.Pool {
	if poolID != nil {
		if p, ok := s.pools[*poolID]; ok {
			return p
		}
	}
	return model.UnknownPool()
}

// Lookup 按ID查询卡池
func (s *Snapshot) Lookup(poolID string) (model.Pool, bool) {
	p, ok := s.pools[poolID]
	return p, ok
}

// Process 当前开放中的卡池ID
func (s *Snapshot) Process() []string {
	return append([]string(nil), s.process...)
}

// UpPoolIDs 所有带UP干员的卡池
func (s *Snapshot) UpPoolIDs() []string {
	var ids []string
	for id, p := range s.pools {
		if p.IsUpPool() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CountType 保底计数分组：限定/联动/定向类卡池各自独立，常驻类合并为标准寻访，中坚类合并为中坚寻访
func CountType(p model.Pool) string {
	switch p.Type {
	case model.PoolTypeLimited, model.PoolTypeLinkage, model.PoolTypeAttain, model.PoolTypeClassicAttain:
		return p.Name
	case model.PoolTypeSingle, model.PoolTypeNormal, model.PoolTypeSpecial:
		return CountTypeStandard
	case model.PoolTypeClassic, model.PoolTypeFesClassic:
		return CountTypeClassic
	default:
		return p.Type
	}
}

// FixRealName 修正导出文件中与接口不一致的卡池名称
func FixRealName(realName string) string {
	switch realName {
	case "【联合行动】特选干员定向寻访":
		return "联合行动"
	case "进攻-防守-战术交汇":
		return "进攻·防守·战术交汇"
	}
	return realName
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Catalog 持有当前快照，刷新时整体替换指针，读者总能拿到一致的快照
type Catalog struct {
	current atomic.Pointer[Snapshot]
}

// New 创建 Catalog；snap 为 nil 时使用空快照
func New(snap *Snapshot) *Catalog {
	c := &Catalog{}
	if snap == nil {
		snap = NewSnapshot(nil, nil)
	}
	c.current.Store(snap)
	return c
}

// Snapshot 当前快照，单次解析操作内应只取一次
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Swap 替换快照
func (c *Catalog) Swap(snap *Snapshot) {
	if snap != nil {
		c.current.Store(snap)
	}
}
