package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hara602/dashcamSentry/internal/agent"
	"github.com/Hara602/dashcamSentry/internal/config"
	"github.com/Hara602/dashcamSentry/internal/importer"
	"github.com/Hara602/dashcamSentry/internal/journal"
	"github.com/Hara602/dashcamSentry/internal/mounter"
	"github.com/Hara602/dashcamSentry/internal/sysutil"
	"github.com/Hara602/dashcamSentry/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashcam-agent <import-dir>",
		Short: "Import dashcam footage whenever the SD card is inserted",
		Long: "Watches udev for a partition with the dashcam's filesystem label, mounts it, copies " +
			"protected clips into <import-dir>/YYYY-MM-DD/ and unmounts the card again.",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), args[0])
			if err != nil {
				return err
			}
			// 参数都合法之后不再打印 usage
			cmd.SilenceUsage = true
			return run(cmd.Context(), cfg)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, closeLog, err := sysutil.NewLogger(sysutil.LogOptions{File: cfg.LogFile, Debug: cfg.Debug})
	if err != nil {
		return err
	}
	defer closeLog()
	defer log.Sync()

	log.Info("🎥 Dashcam Sentry Agent Starting...")
	if !sysutil.IsPrivileged() {
		log.Warn("Not running as root, mount relies on an fstab user entry", zap.String("mount", cfg.MountPoint))
	}

	ctx, stop, _ := shutdownContext(ctx)
	defer stop()

	opts := []importer.Option{importer.WithExtension(cfg.Extension)}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			log.Error("Journal init failed", zap.String("path", cfg.Journal), zap.Error(err))
			return err
		}
		defer j.Close()
		opts = append(opts, importer.WithRecorder(j))
	}

	a := agent.New(log,
		agent.Config{
			Label:        cfg.Label,
			MountPoint:   cfg.MountPoint,
			ProtectedDir: cfg.ProtectedDir,
			ImportDir:    cfg.ImportDir,
		},
		watcher.New(log, watcher.Options{ScanExisting: cfg.ScanExisting}),
		mounter.New(log),
		importer.New(log, opts...),
	)

	if err := a.Run(ctx); err != nil {
		log.Error("Watcher init failed", zap.Error(err))
		return err
	}
	return nil
}

// shutdownContext 挂起、终止、中断信号都会取消 ctx
// 第一次信号之后恢复默认处理，再次发信号即可直接退出；released 在此之后关闭
func shutdownContext(parent context.Context) (ctx context.Context, stop context.CancelFunc, released <-chan struct{}) {
	ctx, stop = signal.NotifyContext(parent, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		stop()
		close(done)
	}()
	return ctx, stop, done
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
