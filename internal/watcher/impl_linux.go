package watcher

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/Hara602/dashcamSentry/internal/model"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

type linuxWatcher struct {
	log    *zap.Logger
	opts   Options
	events chan model.DeviceEvent
	stop   chan struct{}
	once   sync.Once

	// 测试中可替换
	lsblk func() ([]byte, error)
}

func newWatcher(log *zap.Logger, opts Options) DeviceWatcher {
	return &linuxWatcher{
		log:    log,
		opts:   opts,
		events: make(chan model.DeviceEvent, 10),
		stop:   make(chan struct{}),
		lsblk: func() ([]byte, error) {
			return exec.Command("lsblk", lsblkArgs...).Output()
		},
	}
}

func (w *linuxWatcher) Start() (<-chan model.DeviceEvent, error) {
	// 监听 UDEV 事件，连接 NETLINK_KOBJECT_UEVENT
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("udev netlink connect: %w", err)
	}
	queue := make(chan netlink.UEvent)
	errChan := make(chan error)

	quit := conn.Monitor(queue, errChan, nil)

	go func() {
		defer conn.Close()

		if w.opts.ScanExisting {
			go w.scanExisting()
		}

		for {
			select {
			case <-w.stop:
				close(quit)
				return

			case err := <-errChan:
				// 底层网络错误忽略，继续监听
				w.log.Debug("udev monitor error", zap.Error(err))

			case uevent := <-queue:
				if ev, ok := toDeviceEvent(uevent); ok {
					w.emit(ev)
				}
			}
		}
	}()
	return w.events, nil
}

func (w *linuxWatcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

// emit 在 Stop 之后不再阻塞
func (w *linuxWatcher) emit(ev model.DeviceEvent) {
	select {
	case w.events <- ev:
	case <-w.stop:
	}
}

// toDeviceEvent 只保留 block/partition 事件
// UEvent Env 示例: DEVNAME=/dev/sdb1, ID_FS_LABEL=NEXTBASE, ID_FS_TYPE=vfat
func toDeviceEvent(uevent netlink.UEvent) (model.DeviceEvent, bool) {
	env := uevent.Env
	if env["SUBSYSTEM"] != "block" || env["DEVTYPE"] != "partition" {
		return model.DeviceEvent{}, false
	}
	return model.DeviceEvent{
		Action:     model.ParseAction(string(uevent.Action)),
		DeviceNode: devNode(env["DEVNAME"]),
		Label:      labelOrUnknown(env["ID_FS_LABEL"]),
		FSType:     env["ID_FS_TYPE"],
		TimeStamp:  time.Now(),
	}, true
}

// scanExisting 扫描启动前就已插入的分区
func (w *linuxWatcher) scanExisting() {
	out, err := w.lsblk()
	if err != nil {
		w.log.Error("Failed to scan existing partitions", zap.Error(err))
		return
	}
	events := parseLsblk(out, time.Now())
	for _, ev := range events {
		w.log.Info("🔍 Found existing partition during scan",
			zap.String("dev", ev.DeviceNode),
			zap.String("label", ev.Label))
		w.emit(ev)
	}
	if len(events) == 0 {
		w.log.Info("No existing partitions found")
	}
}
