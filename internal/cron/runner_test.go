package cronrunner

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"GachaSync/internal/config"
	"GachaSync/internal/service"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeAccounts struct {
	refreshed int
	codes     []string
}

func (f *fakeAccounts) RefreshAll(context.Context) (service.BulkResult, error) {
	f.refreshed++
	return service.BulkResult{Total: 3, Failed: 1}, nil
}

func (f *fakeAccounts) RedeemGifts(_ context.Context, codes []string) (service.BulkResult, error) {
	f.codes = append(f.codes, codes...)
	return service.BulkResult{Total: 1}, nil
}

type fakeCatalog struct{ err error }

func (f *fakeCatalog) Refresh(context.Context) error { return f.err }

func TestRegisterSkipsEmptySpecs(t *testing.T) {
	cfg := &config.Config{
		Sync:    config.SyncConfig{Cron: "20 4 * * *"},
		Catalog: config.CatalogConfig{Cron: "15 4 * * *"},
	}
	r := New(quietLogger(), context.Background(), time.UTC)
	jobs := NewJobs(&fakeAccounts{}, &fakeCatalog{}, cfg, quietLogger())
	if err := jobs.Register(r); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if n := r.Entries(); n != 2 {
		t.Errorf("entries = %d; want 2", n)
	}
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	cfg := &config.Config{Sync: config.SyncConfig{Cron: "every day"}}
	r := New(quietLogger(), context.Background(), time.UTC)
	if err := NewJobs(&fakeAccounts{}, &fakeCatalog{}, cfg, quietLogger()).Register(r); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

func TestJobsCallServices(t *testing.T) {
	accounts := &fakeAccounts{}
	cfg := &config.Config{Gift: config.GiftConfig{Codes: []string{"A", "B"}}}
	jobs := NewJobs(accounts, &fakeCatalog{err: errors.New("down")}, cfg, quietLogger())
	ctx := context.Background()

	jobs.RefreshCatalog(ctx)
	jobs.RefreshAccounts(ctx)
	jobs.RedeemGifts(ctx)
	if accounts.refreshed != 1 || len(accounts.codes) != 2 {
		t.Errorf("refreshed = %d, codes = %v", accounts.refreshed, accounts.codes)
	}

	cfg.Gift.Codes = nil
	jobs.RedeemGifts(ctx)
	if len(accounts.codes) != 2 {
		t.Errorf("redeem without codes called service: %v", accounts.codes)
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	r := New(quietLogger(), context.Background(), time.UTC)
	done := make(chan struct{})
	var once sync.Once
	if _, err := r.Add("panic", "@every 1s", func(context.Context) {
		defer once.Do(func() { close(done) })
		panic("boom")
	}); err != nil {
		t.Fatal(err)
	}
	r.Start()
	defer r.Stop()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
