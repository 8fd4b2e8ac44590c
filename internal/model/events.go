package model

import "time"

// Action 设备事件类型
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionOther  Action = "other"
)

// 缺省标签：udev 没有给出 ID_FS_LABEL 时使用
const UnknownLabel = "unknown"

// DeviceEvent 分区插拔事件
type DeviceEvent struct {
	Action     Action
	DeviceNode string // e.g., /dev/sdb1
	Label      string // ID_FS_LABEL, e.g., NEXTBASE
	FSType     string // ID_FS_TYPE, e.g., vfat
	TimeStamp  time.Time
}

// ParseAction 把 udev 的 action 字符串映射为 Action
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionAdd:
		return ActionAdd
	case ActionRemove:
		return ActionRemove
	}
	return ActionOther
}

// ImportRecord 一次成功复制的记录
type ImportRecord struct {
	RunID       string
	Source      string // 卡上的原文件
	Destination string // 目标文件完整路径
	Folder      string // YYYY-MM-DD
	Size        int64
	TimeStamp   time.Time // 文件名中解析出的录制时间
}
