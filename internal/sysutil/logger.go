package sysutil

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogOptions 日志输出选项
type LogOptions struct {
	File  string // 为空时只输出到控制台
	Debug bool
}

// NewLogger 创建 logger，由调用方显式传递给各模块
// 返回的 closer 负责关闭日志文件
func NewLogger(opts LogOptions) (*zap.Logger, func(), error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // 格式化时间输出
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	// 控制台：带颜色和行号
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(config.EncoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		),
	}

	closer := func() {}
	if opts.File != "" {
		sink, closeSink, err := zap.Open(opts.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		// 文件里不要颜色转义符
		fileEncoder := config.EncoderConfig
		fileEncoder.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoder), sink, level))
		closer = closeSink
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), closer, nil
}
