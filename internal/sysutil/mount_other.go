//go:build !linux

package sysutil

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("mount detection is only supported on linux")

func IsMountPoint(path string) (bool, error) { return false, errUnsupported }
func MountSource(mountPoint string) string   { return "" }
func IsPrivileged() bool                     { return os.Geteuid() == 0 }
