package watcher

import (
	"github.com/Hara602/dashcamSentry/internal/model"
	"go.uber.org/zap"
)

// DeviceWatcher 分区插拔事件源
type DeviceWatcher interface {
	Start() (<-chan model.DeviceEvent, error)
	Stop()
}

type Options struct {
	// 启动时把已经插着的分区当作 add 事件发出
	ScanExisting bool
}

func New(log *zap.Logger, opts Options) DeviceWatcher {
	return newWatcher(log, opts)
}
