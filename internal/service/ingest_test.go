package service

import (
	"context"
	"io"
	"testing"

	"GachaSync/internal/catalog"
	"GachaSync/internal/model"
	"GachaSync/internal/repository"
	"GachaSync/internal/repository/repotest"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var (
	poolStandard = model.Pool{ID: "NORMAL_1", Name: "常驻标准寻访", RealName: "常驻标准寻访", Type: model.PoolTypeNormal, Start: 0, End: 99999}
	poolLimited  = model.Pool{ID: "LIMITED_1", Name: "银灰色的荣耀", RealName: "银灰色的荣耀", Type: model.PoolTypeLimited, Start: 1000, End: 1999, UpOperators: []string{"银灰"}}
)

func pull(ts int64, pool string, chars ...model.RawChar) model.RawGacha {
	return model.RawGacha{Ts: ts, Pool: pool, Chars: chars}
}

func TestIngestPullsCreatesThenSkips(t *testing.T) {
	db := repotest.NewDB(t)
	ctx := context.Background()
	acc := repotest.SeedAccount(t, db, "40001", nil)
	records := repository.NewRecordRepository(db)
	cat := catalog.New(catalog.NewSnapshot([]model.Pool{poolStandard, poolLimited}, nil))
	in := NewIngester(records, cat, quietLogger())

	items := []model.RawGacha{
		pull(1100, "银灰色的荣耀", model.RawChar{Name: "银灰", Rarity: 5, IsNew: true}, model.RawChar{Name: "芬", Rarity: 2}),
		pull(1200, "常驻标准寻访", model.RawChar{Name: "能天使", Rarity: 5}),
		pull(1300, model.UnknownRealPool, model.RawChar{Name: "玫兰莎", Rarity: 3}),
	}
	res, err := in.IngestPulls(ctx, acc, items)
	if err != nil {
		t.Fatalf("IngestPulls error: %v", err)
	}
	if res.Created != 3 || res.Skipped != 0 {
		t.Fatalf("first ingest = %+v", res)
	}

	limited, _ := records.FindGachaRecord(ctx, acc.ID, 1100)
	if limited.PoolID == nil || *limited.PoolID != "LIMITED_1" {
		t.Fatalf("limited pool = %v", limited.PoolID)
	}
	if limited.Items[0].Rarity != 6 || limited.Items[0].Up != model.UpYes || !limited.Items[0].IsNew {
		t.Errorf("limited item 0 = %+v", limited.Items[0])
	}
	if limited.Items[1].Rarity != 3 || limited.Items[1].Up != model.UpNo {
		t.Errorf("limited item 1 = %+v", limited.Items[1])
	}

	standard, _ := records.FindGachaRecord(ctx, acc.ID, 1200)
	if standard.Items[0].Up != model.UpUnknown {
		t.Errorf("standard pool up = %v; want unknown", standard.Items[0].Up)
	}

	unknown, _ := records.FindGachaRecord(ctx, acc.ID, 1300)
	if unknown.PoolID != nil || unknown.RealPool != nil {
		t.Errorf("unknown pool record = %v, %v", unknown.PoolID, unknown.RealPool)
	}

	res, err = in.IngestPulls(ctx, acc, items)
	if err != nil {
		t.Fatalf("second IngestPulls error: %v", err)
	}
	if res.Created != 0 || res.Reconciled != 0 || res.Skipped != 3 {
		t.Errorf("second ingest = %+v", res)
	}
}

func TestIngestPullsReconcilesAfterCatalogUpdate(t *testing.T) {
	db := repotest.NewDB(t)
	ctx := context.Background()
	acc := repotest.SeedAccount(t, db, "40002", nil)
	records := repository.NewRecordRepository(db)
	cat := catalog.New(catalog.NewSnapshot([]model.Pool{poolStandard}, nil))
	in := NewIngester(records, cat, quietLogger())

	items := []model.RawGacha{
		pull(1500, "银灰色的荣耀", model.RawChar{Name: "银灰", Rarity: 5}, model.RawChar{Name: "陈", Rarity: 5}),
	}
	if _, err := in.IngestPulls(ctx, acc, items); err != nil {
		t.Fatal(err)
	}
	rec, _ := records.FindGachaRecord(ctx, acc.ID, 1500)
	if rec.PoolID != nil || rec.RealPool == nil || *rec.RealPool != "银灰色的荣耀" {
		t.Fatalf("before catalog update = %v, %v", rec.PoolID, rec.RealPool)
	}
	if rec.Items[0].Up != model.UpUnknown {
		t.Fatalf("up before update = %v", rec.Items[0].Up)
	}

	cat.Swap(catalog.NewSnapshot([]model.Pool{poolStandard, poolLimited}, nil))
	res, err := in.IngestPulls(ctx, acc, items)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reconciled != 1 || res.Created != 0 {
		t.Fatalf("reingest = %+v", res)
	}
	rec, _ = records.FindGachaRecord(ctx, acc.ID, 1500)
	if rec.PoolID == nil || *rec.PoolID != "LIMITED_1" {
		t.Fatalf("pool after reconcile = %v", rec.PoolID)
	}
	if rec.Items[0].Up != model.UpYes || rec.Items[1].Up != model.UpNo {
		t.Errorf("up after reconcile = %v, %v", rec.Items[0].Up, rec.Items[1].Up)
	}

	res, _ = in.IngestPulls(ctx, acc, items)
	if res.Reconciled != 0 || res.Skipped != 1 {
		t.Errorf("third ingest = %+v", res)
	}
}

func TestReconcileAccountBackfills(t *testing.T) {
	db := repotest.NewDB(t)
	ctx := context.Background()
	acc := repotest.SeedAccount(t, db, "40003", nil)
	records := repository.NewRecordRepository(db)
	cat := catalog.New(catalog.NewSnapshot(nil, nil))
	in := NewIngester(records, cat, quietLogger())

	_, err := in.IngestPulls(ctx, acc, []model.RawGacha{
		pull(1100, "银灰色的荣耀", model.RawChar{Name: "银灰", Rarity: 5}),
		pull(1200, "常驻标准寻访", model.RawChar{Name: "芬", Rarity: 2}),
		pull(1300, model.UnknownRealPool, model.RawChar{Name: "芬", Rarity: 2}),
	})
	if err != nil {
		t.Fatal(err)
	}

	cat.Swap(catalog.NewSnapshot([]model.Pool{poolStandard, poolLimited}, nil))
	fixed, err := in.ReconcileAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("ReconcileAccount error: %v", err)
	}
	if fixed != 2 {
		t.Errorf("fixed = %d; want 2", fixed)
	}
	if again, _ := in.ReconcileAccount(ctx, acc.ID); again != 0 {
		t.Errorf("second ReconcileAccount fixed = %d; want 0", again)
	}

	rec, _ := records.FindGachaRecord(ctx, acc.ID, 1100)
	changed, err := in.Reconcile(ctx, rec)
	if err != nil || changed {
		t.Errorf("Reconcile(up to date) = %v, %v", changed, err)
	}
}

func TestIngestLedgers(t *testing.T) {
	db := repotest.NewDB(t)
	ctx := context.Background()
	acc := repotest.SeedAccount(t, db, "40004", nil)
	records := repository.NewRecordRepository(db)
	in := NewIngester(records, catalog.New(catalog.NewSnapshot(nil, nil)), quietLogger())

	diamonds := []model.RawDiamond{
		{Ts: 10, Operation: "寻访", Changes: []model.RawDiamondChange{
			{Type: model.PlatformAndroid, Before: 100, After: 94},
			{Type: model.PlatformIOS, Before: 50, After: 44},
		}},
		{Ts: 20, Operation: "充值", Changes: []model.RawDiamondChange{{Type: model.PlatformIOS, Before: 94, After: 100}}},
	}
	res, err := in.IngestDiamonds(ctx, acc, diamonds)
	if err != nil || res.Created != 2 {
		t.Fatalf("IngestDiamonds = %+v, %v", res, err)
	}
	list, _ := records.ListDiamondRecords(ctx, acc.ID)
	if len(list) != 2 || list[1].Platform != model.PlatformAndroid || list[1].Change() != -6 {
		t.Errorf("diamonds = %+v", list)
	}
	if res, _ = in.IngestDiamonds(ctx, acc, diamonds); res.Created != 0 || res.Skipped != 2 {
		t.Errorf("second IngestDiamonds = %+v", res)
	}

	pays := []model.RawPay{
		{OrderID: "o1", ProductName: "源石x6", Amount: 600, PayTime: 100},
		{OrderID: "o1", ProductName: "源石x6", Amount: 600, PayTime: 100},
		{OrderID: "o2", ProductName: "月卡", Amount: 3000, PayTime: 200},
	}
	if res, err = in.IngestPayments(ctx, acc, pays); err != nil || res.Created != 2 {
		t.Fatalf("IngestPayments = %+v, %v", res, err)
	}

	gifts := []model.RawGift{{Ts: 5, Code: "A", GiftName: "礼包"}}
	if res, err = in.IngestGifts(ctx, acc, gifts); err != nil || res.Created != 1 {
		t.Fatalf("IngestGifts = %+v, %v", res, err)
	}
}
