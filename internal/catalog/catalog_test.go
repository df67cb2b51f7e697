package catalog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"GachaSync/internal/config"
	"GachaSync/internal/model"
	"GachaSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

const sampleCatalog = `{
  "pool": {
    "LIMITED_1": {"id": "LIMITED_1", "name": "银灰色的荣耀", "real_name": "银灰色的荣耀", "type": "LIMITED", "start": 1000, "end": 1999, "up_char_info": ["银灰"]},
    "LIMITED_2": {"id": "LIMITED_2", "name": "银灰色的荣耀·复刻", "realName": "银灰色的荣耀", "type": "LIMITED", "start": 5000, "end": 5999, "upOperators": ["银灰"]},
    "NORMAL_1": {"id": "NORMAL_1", "name": "常驻标准寻访", "real_name": "常驻标准寻访", "type": "NORMAL", "start": 0, "end": 9999},
    "CLASSIC_1": {"id": "CLASSIC_1", "name": "中坚寻访", "real_name": "中坚寻访", "type": "CLASSIC", "start": 1500, "end": 9999, "up_char_info": ["陈"]}
  },
  "process": ["LIMITED_2", "NORMAL_1"]
}`

func mustParse(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return s
}

func TestResolveByNameAndTime(t *testing.T) {
	s := mustParse(t)
	tests := []struct {
		name   string
		ts     int64
		want   string
		wantOK bool
	}{
		{"银灰色的荣耀", 1000, "LIMITED_1", true},
		{"银灰色的荣耀", 1999, "LIMITED_1", true},
		{"银灰色的荣耀", 2000, "", false},
		{"银灰色的荣耀", 5500, "LIMITED_2", true},
		{"常驻标准寻访", 5500, "NORMAL_1", true},
		{"中坚寻访", 1200, "", false},
		{"不存在的卡池", 1200, "", false},
	}
	for _, tt := range tests {
		got, ok := s.Resolve(tt.name, tt.ts)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Resolve(%q, %d) = %q, %v; want %q, %v", tt.name, tt.ts, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestResolveDeterministicOnConflict(t *testing.T) {
	pools := []model.Pool{
		{ID: "B", RealName: "同名", Type: model.PoolTypeLimited, Start: 100, End: 200},
		{ID: "A", RealName: "同名", Type: model.PoolTypeLimited, Start: 100, End: 300},
		{ID: "C", RealName: "同名", Type: model.PoolTypeLimited, Start: 150, End: 300},
	}
	s := NewSnapshot(pools, nil)
	if len(s.Conflicts()) == 0 {
		t.Fatal("expected conflicts to be reported")
	}
	for i := 0; i < 20; i++ {
		got, ok := s.Resolve("同名", 120)
		if !ok || got != "A" {
			t.Fatalf("Resolve = %q, %v; want A", got, ok)
		}
	}
	if got, _ := s.Resolve("同名", 160); got != "C" {
		t.Errorf("Resolve at 160 = %q; want C (closest start)", got)
	}
}

func TestInfoAndAccessors(t *testing.T) {
	s := mustParse(t)
	id := "LIMITED_2"
	p := s.Info(&id)
	if p.RealName != "银灰色的荣耀" || len(p.UpOperators) != 1 {
		t.Errorf("Info(LIMITED_2) = %+v", p)
	}
	if !s.Info(nil).IsUnknown() {
		t.Error("Info(nil) should be unknown")
	}
	missing := "NOPE"
	if s.Info(&missing).ID != model.UnknownPoolID {
		t.Error("Info(missing) should be unknown")
	}
	if got := s.UpPoolIDs(); len(got) != 3 || got[0] != "CLASSIC_1" {
		t.Errorf("UpPoolIDs = %v", got)
	}
	if got := s.Process(); len(got) != 2 || got[0] != "LIMITED_2" {
		t.Errorf("Process = %v", got)
	}
}

func TestCountType(t *testing.T) {
	tests := []struct {
		pool model.Pool
		want string
	}{
		{model.Pool{Name: "银灰色的荣耀", Type: model.PoolTypeLimited}, "银灰色的荣耀"},
		{model.Pool{Name: "联动", Type: model.PoolTypeLinkage}, "联动"},
		{model.Pool{Name: "x", Type: model.PoolTypeSingle}, CountTypeStandard},
		{model.Pool{Name: "y", Type: model.PoolTypeNormal}, CountTypeStandard},
		{model.Pool{Name: "z", Type: model.PoolTypeSpecial}, CountTypeStandard},
		{model.Pool{Name: "c", Type: model.PoolTypeClassic}, CountTypeClassic},
		{model.Pool{Name: "f", Type: model.PoolTypeFesClassic}, CountTypeClassic},
		{model.UnknownPool(), model.PoolTypeUnknown},
	}
	for _, tt := range tests {
		if got := CountType(tt.pool); got != tt.want {
			t.Errorf("CountType(%s) = %q; want %q", tt.pool.Type, got, tt.want)
		}
	}
}

func TestFixRealName(t *testing.T) {
	if FixRealName("【联合行动】特选干员定向寻访") != "联合行动" {
		t.Error("joint operation name not fixed")
	}
	if FixRealName("常驻标准寻访") != "常驻标准寻访" {
		t.Error("normal name changed")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("expected error for invalid json")
	}
	if _, err := Parse([]byte(`{"process": []}`)); err == nil {
		t.Error("expected error for missing pool")
	}
}

func newTestLoader(t *testing.T, url, file string) (*Loader, *Catalog) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	req := httpclient.NewRequester(&http.Client{Timeout: 5 * time.Second}, httpclient.NewGate(1),
		httpclient.RetryPolicy{Attempts: 1}, logger)
	c := New(nil)
	return NewLoader(&config.CatalogConfig{URL: url, File: file}, c, req, logger), c
}

func TestLoaderRefreshKeepsSnapshotOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(sampleCatalog))
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "data", "pool_info.json")
	loader, c := newTestLoader(t, srv.URL, file)
	swaps := 0
	loader.OnSwap(func(*Snapshot) { swaps++ })

	if err := loader.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	first := c.Snapshot()
	if first.Len() != 4 || swaps != 1 {
		t.Fatalf("after refresh: pools=%d swaps=%d", first.Len(), swaps)
	}
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("catalog file not written: %v", err)
	}

	fail.Store(true)
	if err := loader.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if c.Snapshot() != first || swaps != 1 {
		t.Error("failed refresh must keep the previous snapshot")
	}
}

func TestLoaderInitPrefersFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pool_info.json")
	if err := os.WriteFile(file, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	loader, c := newTestLoader(t, "http://127.0.0.1:1/unreachable", file)
	if err := loader.Init(context.Background()); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if c.Snapshot().Len() != 4 {
		t.Errorf("pools = %d; want 4", c.Snapshot().Len())
	}
}
