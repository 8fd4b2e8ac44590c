// Package importer 把卡上受保护目录里的录像按日期复制到目标目录
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Hara602/dashcamSentry/internal/analysis"
	"github.com/Hara602/dashcamSentry/internal/model"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	DefaultExtension = ".mp4"

	timestampLayout = "060102_150405"
	folderLayout    = "2006-01-02"
)

var (
	ErrDestinationMissing = errors.New("destination folder does not exist")
	ErrSourceMissing      = errors.New("protected folder does not exist")
	ErrNoTimestamp        = errors.New("no timestamp in file name")
	ErrBadTimestamp       = errors.New("invalid timestamp in file name")
)

// 6 位日期 + 下划线 + 6 位时间，例如 240115_083000
var timestampPattern = regexp.MustCompile(`\d{6}_\d{6}`)

// Recorder 记录成功导入的文件
type Recorder interface {
	Record(ctx context.Context, rec model.ImportRecord) error
}

// Summary 一次导入的统计
type Summary struct {
	Matched int
	Copied  int
	Skipped int
	Failed  int
	Bytes   int64
}

type Importer struct {
	log       *zap.Logger
	extension string
	inspector *analysis.TypeInspector
	recorder  Recorder
	runID     string
}

type Option func(*Importer)

// WithExtension 修改匹配的后缀，大小写不敏感
func WithExtension(ext string) Option {
	return func(i *Importer) {
		if ext == "" {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		i.extension = ext
	}
}

// WithRecorder 每个成功复制的文件都会写入 recorder
func WithRecorder(r Recorder) Option {
	return func(i *Importer) { i.recorder = r }
}

func New(log *zap.Logger, opts ...Option) *Importer {
	i := &Importer{
		log:       log,
		extension: DefaultExtension,
		inspector: analysis.NewTypeInspector(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// WithRun 返回绑定了 runID 的副本，日志和导入记录都会带上它
func (i *Importer) WithRun(runID string) *Importer {
	c := *i
	c.runID = runID
	c.log = i.log.With(zap.String("run", runID))
	return &c
}

// ImportRun 以 runID 执行一次 Import
func (i *Importer) ImportRun(ctx context.Context, runID, sourceRoot, destRoot, subPath string) (Summary, error) {
	return i.WithRun(runID).Import(ctx, sourceRoot, destRoot, subPath)
}

// FolderName 从文件名中解析录制日期，返回 YYYY-MM-DD 和录制时间
func FolderName(fileName string) (string, time.Time, error) {
	token := timestampPattern.FindString(fileName)
	if token == "" {
		return "", time.Time{}, ErrNoTimestamp
	}
	ts, err := time.Parse(timestampLayout, token)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %s", ErrBadTimestamp, token)
	}
	return ts.Format(folderLayout), ts, nil
}

// Import 复制 sourceRoot/subPath 下（不递归）所有匹配后缀的文件
// 单个文件失败只记日志，不影响其它文件
func (i *Importer) Import(ctx context.Context, sourceRoot, destRoot, subPath string) (Summary, error) {
	var summary Summary

	if info, err := os.Stat(destRoot); err != nil || !info.IsDir() {
		i.log.Error("Import folder does not exist", zap.String("dest", destRoot))
		return summary, fmt.Errorf("%w: %s", ErrDestinationMissing, destRoot)
	}

	protected := filepath.Join(sourceRoot, subPath)
	if info, err := os.Stat(protected); err != nil || !info.IsDir() {
		i.log.Error("Protected folder does not exist", zap.String("path", protected))
		return summary, fmt.Errorf("%w: %s", ErrSourceMissing, protected)
	}

	entries, err := os.ReadDir(protected)
	if err != nil {
		i.log.Error("Failed to list protected folder", zap.String("path", protected), zap.Error(err))
		return summary, err
	}

	i.log.Info("📥 Importing footage", zap.String("from", protected), zap.String("to", destRoot))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			i.log.Warn("Import interrupted", zap.Int("copied", summary.Copied))
			return summary, err
		}
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), i.extension) {
			continue
		}
		summary.Matched++

		rec, err := i.CopyFile(ctx, filepath.Join(protected, entry.Name()), destRoot)
		switch {
		case err == nil:
			summary.Copied++
			summary.Bytes += rec.Size
		case errors.Is(err, ErrNoTimestamp), errors.Is(err, ErrBadTimestamp):
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	i.log.Info("🏁 Import finished",
		zap.Int("matched", summary.Matched),
		zap.Int("copied", summary.Copied),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.String("size", humanize.Bytes(uint64(summary.Bytes))))
	return summary, nil
}

// CopyFile 把 file 复制到 destRoot/YYYY-MM-DD/，同名文件直接覆盖
func (i *Importer) CopyFile(ctx context.Context, file, destRoot string) (model.ImportRecord, error) {
	name := filepath.Base(file)

	folder, ts, err := FolderName(name)
	if err != nil {
		i.log.Warn("Skipping file without timestamp", zap.String("file", name), zap.Error(err))
		return model.ImportRecord{}, err
	}

	i.inspect(file)

	destDir := filepath.Join(destRoot, folder)
	if err := os.Mkdir(destDir, 0755); err != nil && !os.IsExist(err) {
		i.log.Error("Failed to create date folder", zap.String("folder", destDir), zap.Error(err))
		return model.ImportRecord{}, err
	}

	dest := filepath.Join(destDir, name)
	i.log.Info("Copying", zap.String("file", name), zap.String("to", destDir))

	size, err := copyContents(file, dest)
	if err != nil {
		i.log.Error("❌ Failed to copy file", zap.String("file", file), zap.Error(err))
		return model.ImportRecord{}, err
	}
	i.log.Debug("Copied", zap.String("file", name), zap.String("size", humanize.Bytes(uint64(size))))

	rec := model.ImportRecord{
		RunID:       i.runID,
		Source:      file,
		Destination: dest,
		Folder:      folder,
		Size:        size,
		TimeStamp:   ts,
	}
	if i.recorder != nil {
		if err := i.recorder.Record(ctx, rec); err != nil {
			i.log.Warn("Failed to journal import", zap.String("file", name), zap.Error(err))
		}
	}
	return rec, nil
}

// inspect 只告警，不阻止复制
func (i *Importer) inspect(file string) {
	result, err := i.inspector.Inspect(file)
	if err != nil {
		i.log.Debug("filetype inspect failed", zap.String("file", file), zap.Error(err))
		return
	}
	if result.IsMasquerade || (result.RealExt != "unknown" && !result.IsVideo) {
		i.log.Warn("⚠️ File does not look like a video",
			zap.String("file", file),
			zap.String("real", result.RealExt),
			zap.String("detail", result.Message))
	}
}

func copyContents(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	// 卡上的加锁录像通常是只读的，副本保留属主写权限，否则下次导入无法覆盖
	perm := info.Mode().Perm() | 0200

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if os.IsPermission(err) {
		// 旧版本留下的只读副本：先删除再创建
		if rmErr := os.Remove(dst); rmErr == nil {
			out, err = os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		}
	}
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	// 目标已存在时 OpenFile 不会改权限
	if err := os.Chmod(dst, perm); err != nil {
		return n, err
	}
	return n, nil
}
