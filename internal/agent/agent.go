// Package agent 串联插卡事件、挂载、导入和卸载
package agent

import (
	"context"
	"fmt"

	"github.com/Hara602/dashcamSentry/internal/importer"
	"github.com/Hara602/dashcamSentry/internal/model"
	"github.com/Hara602/dashcamSentry/internal/mounter"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source 设备事件源，watcher.DeviceWatcher 满足该接口
type Source interface {
	Start() (<-chan model.DeviceEvent, error)
	Stop()
}

type Mounter interface {
	Mount(ctx context.Context, device, mountPoint, fsType string) error
	Unmount(ctx context.Context, mountPoint string) error
}

type Importer interface {
	ImportRun(ctx context.Context, runID, sourceRoot, destRoot, subPath string) (importer.Summary, error)
}

type Config struct {
	Label        string
	MountPoint   string
	ProtectedDir string
	ImportDir    string
}

type Agent struct {
	log      *zap.Logger
	cfg      Config
	source   Source
	mounter  Mounter
	importer Importer
	newRunID func() string
}

func New(log *zap.Logger, cfg Config, source Source, m Mounter, im Importer) *Agent {
	return &Agent{
		log:      log,
		cfg:      cfg,
		source:   source,
		mounter:  m,
		importer: im,
		newRunID: uuid.NewString,
	}
}

// Run 阻塞处理事件，直到 ctx 被取消或事件流关闭
// 每个事件完整处理（挂载 → 导入 → 卸载）后才读取下一个
func (a *Agent) Run(ctx context.Context) error {
	events, err := a.source.Start()
	if err != nil {
		return fmt.Errorf("start device watcher: %w", err)
	}
	defer a.source.Stop()

	a.log.Info("👀 Waiting for SD card",
		zap.String("label", a.cfg.Label),
		zap.String("mount", a.cfg.MountPoint),
		zap.String("dest", a.cfg.ImportDir))

	for {
		// 收到信号后不再开始新的一轮
		if ctx.Err() != nil {
			a.log.Info("Signal received, shutting down...")
			return nil
		}
		select {
		case <-ctx.Done():
			a.log.Info("Signal received, shutting down...")
			return nil
		case ev, ok := <-events:
			if !ok {
				a.log.Warn("Device event stream closed")
				return nil
			}
			a.Handle(ctx, ev)
		}
	}
}

// Handle 处理单个事件
func (a *Agent) Handle(ctx context.Context, ev model.DeviceEvent) {
	if ev.Action != model.ActionAdd {
		a.log.Debug("Ignoring device event", zap.String("action", string(ev.Action)), zap.String("dev", ev.DeviceNode))
		return
	}
	a.log.Info("🔌 Partition added",
		zap.String("dev", ev.DeviceNode),
		zap.String("label", ev.Label),
		zap.String("fstype", ev.FSType))

	if ev.Label != a.cfg.Label {
		return
	}

	runID := a.newRunID()
	log := a.log.With(zap.String("run", runID))

	if err := a.mounter.Mount(ctx, ev.DeviceNode, a.cfg.MountPoint, ev.FSType); err != nil {
		log.Warn("Card not mounted, skipping import",
			zap.String("dev", ev.DeviceNode),
			zap.Int("status", mounter.ExitStatus(err)))
		return
	}
	// 即使导入途中收到退出信号也要卸载
	defer func() {
		_ = a.mounter.Unmount(context.WithoutCancel(ctx), a.cfg.MountPoint)
	}()

	summary, err := a.importer.ImportRun(ctx, runID, a.cfg.MountPoint, a.cfg.ImportDir, a.cfg.ProtectedDir)
	if err != nil {
		return
	}
	log.Info("📦 Card cycle finished",
		zap.String("dev", ev.DeviceNode),
		zap.Int("copied", summary.Copied),
		zap.Int("failed", summary.Failed),
		zap.String("size", humanize.Bytes(uint64(summary.Bytes))))
}
