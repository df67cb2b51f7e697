package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"GachaSync/internal/adapter"
	"GachaSync/internal/catalog"
	"GachaSync/internal/config"
	"GachaSync/internal/interfaces"
	"GachaSync/internal/model"
	"GachaSync/internal/repository"
	"GachaSync/internal/repository/repotest"

	"gorm.io/gorm"
)

const fakePageSize = 2

// fakeSource 内存中的外部接口，gacha/diamonds 按时间倒序存放
type fakeSource struct {
	mu         sync.Mutex
	uid        string
	rejected   bool
	gacha      []model.RawGacha
	diamonds   []model.RawDiamond
	pays       []model.RawPay
	gifts      []model.RawGift
	gachaCalls int
	exchanged  []string
}

func (f *fakeSource) Channel() model.Channel { return model.ChannelOfficial }

func (f *fakeSource) GetUserInfo(ctx context.Context) (*model.UserInfo, error) {
	if f.rejected {
		return nil, adapter.ErrTokenRejected
	}
	return &model.UserInfo{UID: f.uid, NickName: "博士#" + f.uid}, nil
}

func fakePage[T any](list []T, n int) []T {
	start := (n - 1) * fakePageSize
	if start >= len(list) {
		return nil
	}
	end := start + fakePageSize
	if end > len(list) {
		end = len(list)
	}
	return list[start:end]
}

func (f *fakeSource) GetGachaPage(ctx context.Context, n int) ([]model.RawGacha, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gachaCalls++
	return fakePage(f.gacha, n), nil
}

func (f *fakeSource) GetDiamondPage(ctx context.Context, n int) ([]model.RawDiamond, error) {
	return fakePage(f.diamonds, n), nil
}

func (f *fakeSource) GetPayRecords(ctx context.Context) ([]model.RawPay, error) { return f.pays, nil }

func (f *fakeSource) GetGiftRecords(ctx context.Context) ([]model.RawGift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.RawGift(nil), f.gifts...), nil
}

func (f *fakeSource) ExchangeGift(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanged = append(f.exchanged, code)
	f.gifts = append(f.gifts, model.RawGift{Ts: int64(1000 + len(f.gifts)), Code: code, GiftName: "礼包"})
	return true, nil
}

type fakeClient struct {
	sources map[string]*fakeSource
}

func (c *fakeClient) Channel() model.Channel { return model.ChannelOfficial }

func (c *fakeClient) Session(token string) interfaces.HistorySource {
	if s, ok := c.sources[token]; ok {
		return s
	}
	return &fakeSource{rejected: true}
}

type syncFixture struct {
	db      *gorm.DB
	svc     *SyncService
	records repository.RecordRepository
	client  *fakeClient
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	db := repotest.NewDB(t)
	logger := quietLogger()
	records := repository.NewRecordRepository(db)
	cat := catalog.New(catalog.NewSnapshot([]model.Pool{poolStandard, poolLimited}, nil))
	client := &fakeClient{sources: map[string]*fakeSource{}}
	registry := adapter.NewChannelRegistry(nil, nil, logger)
	registry.Register(client)
	cfg := &config.Config{Sync: config.SyncConfig{MaxPages: 10, AccountWorkers: 2}}
	svc := NewSyncService(repository.NewAccountRepository(db), records, registry, NewIngester(records, cat, logger), cfg, logger)
	return &syncFixture{db: db, svc: svc, records: records, client: client}
}

func TestBindAndIncrementalRefresh(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	src := &fakeSource{
		uid: "50001",
		gacha: []model.RawGacha{
			pull(1300, "常驻标准寻访", model.RawChar{Name: "芬", Rarity: 2}),
			pull(1200, "常驻标准寻访", model.RawChar{Name: "能天使", Rarity: 5}),
			pull(1100, "银灰色的荣耀", model.RawChar{Name: "银灰", Rarity: 5}),
		},
		diamonds: []model.RawDiamond{{Ts: 10, Operation: "寻访", Changes: []model.RawDiamondChange{{Before: 6, After: 0}}}},
		pays:     []model.RawPay{{OrderID: "o1", Amount: 600, PayTime: 5}},
		gifts:    []model.RawGift{{Ts: 7, Code: "A"}},
	}
	f.client.sources["tok"] = src

	acc, err := f.svc.Bind(ctx, model.ChannelOfficial, "tok", nil)
	if err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if acc.UID != "50001" || acc.Nickname != "博士#50001" || acc.ID == 0 {
		t.Fatalf("bound account = %+v", acc)
	}

	res, err := f.svc.RefreshByUID(ctx, "50001", false)
	if err != nil {
		t.Fatalf("RefreshByUID error: %v", err)
	}
	if res.Pulls.Created != 3 || res.Diamonds.Created != 1 || res.Pays.Created != 1 || res.Gifts.Created != 1 {
		t.Errorf("first refresh = %+v", res)
	}
	list, _ := f.records.ListGachaRecords(ctx, acc.ID)
	if len(list) != 3 || list[0].Time != 1100 || list[2].Time != 1300 {
		t.Errorf("records = %d, first = %d", len(list), list[0].Time)
	}

	src.gacha = append([]model.RawGacha{pull(1400, "常驻标准寻访", model.RawChar{Name: "克洛丝", Rarity: 2})}, src.gacha...)
	src.gachaCalls = 0
	res, err = f.svc.RefreshByUID(ctx, "50001", false)
	if err != nil {
		t.Fatalf("second refresh error: %v", err)
	}
	if res.Pulls.Created != 1 || res.Pays.Created != 0 {
		t.Errorf("second refresh = %+v", res)
	}
	// 第1页包含游标记录后即停止
	if src.gachaCalls != 1 {
		t.Errorf("gacha page calls = %d; want 1", src.gachaCalls)
	}
}

func TestForceRefreshRereadsFromStart(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	src := &fakeSource{
		uid: "50005",
		gacha: []model.RawGacha{
			pull(1300, "常驻标准寻访", model.RawChar{Name: "芬", Rarity: 2}),
			pull(1200, "常驻标准寻访", model.RawChar{Name: "能天使", Rarity: 5}),
			pull(1100, "银灰色的荣耀", model.RawChar{Name: "银灰", Rarity: 5}),
		},
	}
	f.client.sources["tok5"] = src
	acc, err := f.svc.Bind(ctx, model.ChannelOfficial, "tok5", nil)
	if err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if _, err := f.svc.RefreshByUID(ctx, "50005", false); err != nil {
		t.Fatalf("first refresh error: %v", err)
	}

	src.gacha = append([]model.RawGacha{pull(1400, "常驻标准寻访", model.RawChar{Name: "克洛丝", Rarity: 2})}, src.gacha...)
	src.gachaCalls = 0
	res, err := f.svc.RefreshByUID(ctx, "50005", true)
	if err != nil {
		t.Fatalf("forced refresh error: %v", err)
	}
	// 4条记录每页2条：两页数据加一个空页
	if src.gachaCalls != 3 {
		t.Errorf("gacha page calls = %d; want 3", src.gachaCalls)
	}
	if res.Pulls.Created != 1 || res.Pulls.Reconciled+res.Pulls.Skipped != 3 {
		t.Errorf("forced pulls = %+v; want 1 created, 3 re-observed", res.Pulls)
	}
	list, _ := f.records.ListGachaRecords(ctx, acc.ID)
	if len(list) != 4 {
		t.Errorf("records = %d; want 4", len(list))
	}

	src.gachaCalls = 0
	if _, err := f.svc.RefreshByUID(ctx, "50005", false); err != nil {
		t.Fatalf("incremental refresh error: %v", err)
	}
	if src.gachaCalls != 1 {
		t.Errorf("incremental page calls = %d; want 1", src.gachaCalls)
	}
}

func TestRefreshMarksRejectedToken(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	acc := repotest.SeedAccount(t, f.db, "50002", nil)

	_, err := f.svc.RefreshByUID(ctx, acc.UID, false)
	if !errors.Is(err, adapter.ErrTokenRejected) {
		t.Fatalf("err = %v; want ErrTokenRejected", err)
	}
	_, err = f.svc.RefreshByUID(ctx, acc.UID, false)
	if !errors.Is(err, ErrAccountUnavailable) {
		t.Errorf("err = %v; want ErrAccountUnavailable", err)
	}
	_, err = f.svc.RefreshByUID(ctx, "99999", false)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("err = %v; want ErrAccountNotFound", err)
	}
}

func TestRefreshAllIsolatesFailures(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	good := repotest.SeedAccount(t, f.db, "50003", nil)
	repotest.SeedAccount(t, f.db, "50004", nil)
	f.client.sources[good.Token] = &fakeSource{uid: good.UID, gacha: []model.RawGacha{pull(1, "常驻标准寻访", model.RawChar{Name: "芬", Rarity: 2})}}

	res, err := f.svc.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll error: %v", err)
	}
	if res.Total != 2 || res.Failed != 1 {
		t.Errorf("RefreshAll = %+v", res)
	}
	if n, _ := f.records.LatestGachaTime(ctx, good.ID); n != 1 {
		t.Errorf("good account cursor = %d", n)
	}
}

func TestRedeemGiftsSkipsUsedCodes(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	cfg := model.DefaultUserConfig()
	cfg.IsAutoGift = true
	owner := repotest.SeedUser(t, f.db, "doctor", cfg)
	acc := repotest.SeedAccount(t, f.db, "50005", owner)
	repotest.SeedAccount(t, f.db, "50006", nil)
	src := &fakeSource{uid: acc.UID, gifts: []model.RawGift{{Ts: 1, Code: "A"}}}
	f.client.sources[acc.Token] = src
	if _, err := f.svc.RefreshAccount(ctx, acc, false); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.RedeemGifts(ctx, []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("RedeemGifts error: %v", err)
	}
	if res.Total != 1 || res.Failed != 0 {
		t.Errorf("RedeemGifts = %+v", res)
	}
	if len(src.exchanged) != 2 || src.exchanged[0] != "B" || src.exchanged[1] != "C" {
		t.Errorf("exchanged = %v", src.exchanged)
	}
	codes, _ := f.records.ListGiftCodes(ctx, acc.ID)
	if len(codes) != 3 {
		t.Errorf("stored codes = %v", codes)
	}
}
