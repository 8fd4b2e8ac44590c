// Package mounter 负责把 SD 卡挂载到固定挂载点，导入完成后卸载
package mounter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Hara602/dashcamSentry/internal/sysutil"
	"go.uber.org/zap"
)

// CommandFunc 执行外部命令，返回退出码和标准错误输出
// 命令无法启动时 err 非空
type CommandFunc func(ctx context.Context, name string, args ...string) (exitCode int, stderr string, err error)

// CommandError mount/umount 非零退出
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// ExitStatus 从 Mount 的返回值中取退出码，nil 即 0
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

type Manager struct {
	log *zap.Logger

	// 以下字段可在测试中替换
	Run        CommandFunc
	IsMounted  func(path string) (bool, error)
	Source     func(mountPoint string) string
	Privileged func() bool
}

func New(log *zap.Logger) *Manager {
	return &Manager{
		log:        log,
		Run:        runCommand,
		IsMounted:  sysutil.IsMountPoint,
		Source:     sysutil.MountSource,
		Privileged: sysutil.IsPrivileged,
	}
}

// Mount 把 device 挂载到 mountPoint
// 挂载点上已有文件系统时直接返回 nil，不检查是不是同一个设备
func (m *Manager) Mount(ctx context.Context, device, mountPoint, fsType string) error {
	m.log.Info("💾 Mounting SD card", zap.String("dev", device), zap.String("mount", mountPoint))

	if _, err := os.Stat(mountPoint); err != nil {
		if !os.IsNotExist(err) {
			m.log.Error("Failed to stat mount point", zap.String("mount", mountPoint), zap.Error(err))
			return err
		}
		// 只创建最后一级目录
		if err := os.Mkdir(mountPoint, 0755); err != nil {
			m.log.Error("Failed to create mount point", zap.String("mount", mountPoint), zap.Error(err))
			return err
		}
	} else {
		mounted, err := m.IsMounted(mountPoint)
		if err != nil {
			m.log.Warn("Could not check mount point", zap.String("mount", mountPoint), zap.Error(err))
		}
		if mounted {
			m.log.Info("Mount point already in use, skipping mount",
				zap.String("mount", mountPoint),
				zap.String("holder", m.Source(mountPoint)))
			return nil
		}
	}

	var args []string
	if m.Privileged() {
		if fsType != "" {
			args = append(args, "-t", fsType)
		}
		args = append(args, device, mountPoint)
	} else {
		// 非 root：依赖 /etc/fstab 中的 user 条目
		args = append(args, device)
	}

	code, stderr, err := m.Run(ctx, "mount", args...)
	if err != nil {
		m.log.Error("❌ Failed to run mount", zap.String("dev", device), zap.Error(err))
		return fmt.Errorf("mount %s: %w", device, err)
	}
	if code != 0 {
		m.log.Error("❌ Failed to mount SD card",
			zap.String("dev", device),
			zap.String("mount", mountPoint),
			zap.Int("status", code),
			zap.String("stderr", stderr))
		return &CommandError{Command: "mount", ExitCode: code, Stderr: stderr}
	}

	m.log.Info("✅ Mounted SD card", zap.String("dev", device), zap.String("mount", mountPoint))
	return nil
}

// Unmount 卸载 mountPoint，未挂载时什么也不做
// 不重试，也不做强制卸载
func (m *Manager) Unmount(ctx context.Context, mountPoint string) error {
	if _, err := os.Stat(mountPoint); err != nil {
		return nil
	}
	mounted, err := m.IsMounted(mountPoint)
	if err != nil || !mounted {
		return nil
	}

	code, stderr, err := m.Run(ctx, "umount", mountPoint)
	if err != nil {
		m.log.Error("❌ Failed to run umount", zap.String("mount", mountPoint), zap.Error(err))
		return fmt.Errorf("umount %s: %w", mountPoint, err)
	}
	if code != 0 {
		m.log.Error("❌ Failed to unmount SD card",
			zap.String("mount", mountPoint),
			zap.Int("status", code),
			zap.String("stderr", stderr))
		return &CommandError{Command: "umount", ExitCode: code, Stderr: stderr}
	}

	m.log.Info("⏏️ Unmounted SD card", zap.String("mount", mountPoint))
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) (int, string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	msg := strings.TrimSpace(stderr.String())
	if err == nil {
		return 0, msg, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), msg, nil
	}
	return -1, msg, err
}
