//go:build !linux

package watcher

import (
	"errors"

	"github.com/Hara602/dashcamSentry/internal/model"
	"go.uber.org/zap"
)

type otherWatcher struct{}

func newWatcher(log *zap.Logger, opts Options) DeviceWatcher { return &otherWatcher{} }

func (w *otherWatcher) Start() (<-chan model.DeviceEvent, error) {
	return nil, errors.New("udev hot-plug events are only available on linux")
}
func (w *otherWatcher) Stop() {}
