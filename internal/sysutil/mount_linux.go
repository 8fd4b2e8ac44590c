//go:build linux

package sysutil

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// IsMountPoint 判断 path 上是否挂载了文件系统
// 与父目录的 st_dev 不同，或者与父目录是同一个 inode（根目录），即为挂载点
func IsMountPoint(path string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	// 符号链接不算挂载点
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return false, nil
	}
	if err := unix.Lstat(filepath.Join(path, ".."), &parent); err != nil {
		return false, fmt.Errorf("stat parent of %s: %w", path, err)
	}
	if st.Dev != parent.Dev {
		return true, nil
	}
	return st.Ino == parent.Ino, nil
}

// MountSource 返回挂载在 mountPoint 上的设备，找不到时返回空串
func MountSource(mountPoint string) string {
	partitions, err := disk.Partitions(true)
	if err != nil {
		return ""
	}
	want := filepath.Clean(mountPoint)
	// 同一挂载点可能被叠加挂载，取最后一条
	source := ""
	for _, p := range partitions {
		if filepath.Clean(p.Mountpoint) == want {
			source = p.Device
		}
	}
	return source
}

// IsPrivileged 是否以 root 运行
func IsPrivileged() bool {
	return unix.Geteuid() == 0
}
