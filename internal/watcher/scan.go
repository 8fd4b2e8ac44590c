package watcher

import (
	"strings"
	"time"

	"github.com/Hara602/dashcamSentry/internal/model"
	"github.com/tidwall/gjson"
)

// lsblk -J 输出中需要的列
var lsblkArgs = []string{"-J", "-p", "-o", "NAME,LABEL,FSTYPE,TYPE"}

// parseLsblk 把 lsblk -J 的输出转换为分区 add 事件
func parseLsblk(data []byte, now time.Time) []model.DeviceEvent {
	var events []model.DeviceEvent

	var walk func(devs gjson.Result)
	walk = func(devs gjson.Result) {
		devs.ForEach(func(_, dev gjson.Result) bool {
			if dev.Get("type").String() == "part" {
				events = append(events, model.DeviceEvent{
					Action:     model.ActionAdd,
					DeviceNode: devNode(dev.Get("name").String()),
					Label:      labelOrUnknown(dev.Get("label").String()),
					FSType:     dev.Get("fstype").String(),
					TimeStamp:  now,
				})
			}
			// 分区下面还可能有 LVM / crypt 子设备
			walk(dev.Get("children"))
			return true
		})
	}
	walk(gjson.GetBytes(data, "blockdevices"))

	return events
}

func devNode(name string) string {
	if name == "" || strings.HasPrefix(name, "/dev") {
		return name
	}
	return "/dev/" + name
}

func labelOrUnknown(label string) string {
	if label == "" {
		return model.UnknownLabel
	}
	return label
}
