package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"GachaSync/internal/config"
	"GachaSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// Loader 负责从远端下载卡池信息并落盘，下载失败时沿用已加载的快照
type Loader struct {
	cfg     *config.CatalogConfig
	catalog *Catalog
	req     *httpclient.Requester
	logger  *logrus.Logger
	onSwap  []func(*Snapshot)
}

func NewLoader(cfg *config.CatalogConfig, catalog *Catalog, req *httpclient.Requester, logger *logrus.Logger) *Loader {
	return &Loader{cfg: cfg, catalog: catalog, req: req, logger: logger}
}

// OnSwap 注册快照替换后的回调（例如触发已入库记录的重新归类）
func (l *Loader) OnSwap(fn func(*Snapshot)) {
	l.onSwap = append(l.onSwap, fn)
}

// Init 启动时加载：优先读取本地快照，不存在或损坏时从远端下载
func (l *Loader) Init(ctx context.Context) error {
	if l.cfg.File != "" {
		data, err := os.ReadFile(l.cfg.File)
		switch {
		case err == nil:
			snap, perr := Parse(data)
			if perr == nil {
				l.swap(snap, "file")
				return nil
			}
			l.logger.WithError(perr).WithField("file", l.cfg.File).Warn("本地卡池信息损坏，改为远端下载")
		case errors.Is(err, os.ErrNotExist):
			l.logger.WithField("file", l.cfg.File).Info("本地卡池信息不存在，从远端下载")
		default:
			l.logger.WithError(err).WithField("file", l.cfg.File).Warn("读取本地卡池信息失败")
		}
	}
	return l.Refresh(ctx)
}

// Refresh 下载并替换快照；失败时返回错误，当前快照保持不变
func (l *Loader) Refresh(ctx context.Context) error {
	if l.cfg.URL == "" {
		return fmt.Errorf("未配置卡池信息地址")
	}
	body, err := l.req.Do(ctx, "GET", l.cfg.URL, nil, nil)
	if err != nil {
		l.logger.WithError(err).WithField("url", l.cfg.URL).Warn("下载卡池信息失败，继续使用旧快照")
		return fmt.Errorf("下载卡池信息失败: %w", err)
	}
	snap, err := Parse(body)
	if err != nil {
		l.logger.WithError(err).Warn("卡池信息格式错误，继续使用旧快照")
		return err
	}
	if err := l.persist(body); err != nil {
		l.logger.WithError(err).WithField("file", l.cfg.File).Warn("卡池信息落盘失败")
	}
	l.swap(snap, "remote")
	return nil
}

func (l *Loader) persist(data []byte) error {
	if l.cfg.File == "" {
		return nil
	}
	if dir := filepath.Dir(l.cfg.File); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := l.cfg.File + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.cfg.File)
}

func (l *Loader) swap(snap *Snapshot, source string) {
	for _, c := range snap.Conflicts() {
		l.logger.WithField("conflict", c).Warn("卡池信息中存在同名且时间重叠的卡池")
	}
	l.catalog.Swap(snap)
	l.logger.WithFields(logrus.Fields{
		"source":  source,
		"pools":   snap.Len(),
		"process": snap.Process(),
	}).Info("卡池信息已更新")
	for _, fn := range l.onSwap {
		fn(snap)
	}
}
