// Package config 组合命令行参数和 DASHCAM_* 环境变量，不读取配置文件
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "DASHCAM"

const (
	KeyLabel        = "label"
	KeyMountPoint   = "mount-point"
	KeyProtectedDir = "protected-dir"
	KeyExtension    = "extension"
	KeyLogFile      = "log-file"
	KeyDebug        = "debug"
	KeyJournal      = "journal"
	KeyScanExisting = "scan-existing"
)

type Config struct {
	ImportDir    string // 唯一的位置参数
	Label        string
	MountPoint   string
	ProtectedDir string
	Extension    string
	LogFile      string
	Debug        bool
	Journal      string
	ScanExisting bool
}

// RegisterFlags 在 fs 上注册所有参数及默认值
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyLabel, "NEXTBASE", "filesystem label of the dashcam SD card")
	fs.String(KeyMountPoint, "/mnt/dashcam", "where the card is mounted")
	fs.String(KeyProtectedDir, "DCIM/PROTECTED", "folder on the card to import from")
	fs.String(KeyExtension, ".mp4", "file extension to import (case-insensitive)")
	fs.String(KeyLogFile, "", "also write logs to this file")
	fs.Bool(KeyDebug, false, "enable debug logging")
	fs.String(KeyJournal, "", "record imported files in this SQLite database")
	fs.Bool(KeyScanExisting, false, "import cards that are already inserted at startup")
}

// Load 优先级：显式参数 > 环境变量 > 默认值
func Load(fs *pflag.FlagSet, importDir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg := &Config{
		ImportDir:    importDir,
		Label:        v.GetString(KeyLabel),
		MountPoint:   v.GetString(KeyMountPoint),
		ProtectedDir: v.GetString(KeyProtectedDir),
		Extension:    v.GetString(KeyExtension),
		LogFile:      v.GetString(KeyLogFile),
		Debug:        v.GetBool(KeyDebug),
		Journal:      v.GetString(KeyJournal),
		ScanExisting: v.GetBool(KeyScanExisting),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.ImportDir == "":
		return fmt.Errorf("import directory is required")
	case c.Label == "":
		return fmt.Errorf("%s must not be empty", KeyLabel)
	case c.MountPoint == "":
		return fmt.Errorf("%s must not be empty", KeyMountPoint)
	case c.ProtectedDir == "":
		return fmt.Errorf("%s must not be empty", KeyProtectedDir)
	}
	return nil
}
