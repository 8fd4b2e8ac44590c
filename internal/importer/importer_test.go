package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/dashcamSentry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestImporter(opts ...Option) (*Importer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(zap.New(core), opts...), logs
}

// card 在临时目录里模拟挂载好的 SD 卡
func card(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	protected := filepath.Join(root, "DCIM", "PROTECTED")
	require.NoError(t, os.MkdirAll(protected, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(protected, name), []byte(content), 0644))
	}
	return root
}

// listTree 返回 root 下所有文件和目录的相对路径
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		out = append(out, rel)
		return nil
	})
	require.NoError(t, err)
	return out
}

type memRecorder struct {
	records []model.ImportRecord
	err     error
}

func (m *memRecorder) Record(ctx context.Context, rec model.ImportRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func TestFolderName(t *testing.T) {
	cases := []struct {
		name           string
		fileName       string
		expectedFolder string
		expectedTime   time.Time
		expectedErr    error
	}{
		{
			name:           "nextbase protected clip",
			fileName:       "240115_083000_001.MP4",
			expectedFolder: "2024-01-15",
			expectedTime:   time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC),
		},
		{
			name:           "token in the middle",
			fileName:       "PRO_231231_235959_F.mp4",
			expectedFolder: "2023-12-31",
			expectedTime:   time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name:        "no token",
			fileName:    "notes.mp4",
			expectedErr: ErrNoTimestamp,
		},
		{
			name:        "short token",
			fileName:    "24011_083000.mp4",
			expectedErr: ErrNoTimestamp,
		},
		{
			name:        "impossible month",
			fileName:    "241399_083000.mp4",
			expectedErr: ErrBadTimestamp,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			folder, ts, err := FolderName(tt.fileName)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedFolder, folder)
			assert.True(t, tt.expectedTime.Equal(ts))
		})
	}
}

func TestImport_Scenario(t *testing.T) {
	src := card(t, map[string]string{
		"240115_083000_001.MP4": "video",
		"notes.txt":             "hello",
	})
	dest := t.TempDir()
	im, _ := newTestImporter()

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"2024-01-15",
		filepath.Join("2024-01-15", "240115_083000_001.MP4"),
	}, listTree(t, dest))
	assert.Equal(t, Summary{Matched: 1, Copied: 1, Bytes: 5}, summary)

	data, err := os.ReadFile(filepath.Join(dest, "2024-01-15", "240115_083000_001.MP4"))
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
}

func TestImport_DestinationMissing(t *testing.T) {
	src := card(t, map[string]string{"240115_083000_001.MP4": "video"})
	parent := t.TempDir()
	dest := filepath.Join(parent, "imports")
	im, logs := newTestImporter()

	_, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	assert.ErrorIs(t, err, ErrDestinationMissing)
	assert.Equal(t, 1, logs.FilterMessage("Import folder does not exist").Len())
	assert.Empty(t, listTree(t, parent))
}

func TestImport_DestinationIsFile(t *testing.T) {
	src := card(t, nil)
	dest := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(dest, nil, 0644))
	im, _ := newTestImporter()

	_, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	assert.ErrorIs(t, err, ErrDestinationMissing)
}

func TestImport_ProtectedMissing(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	im, logs := newTestImporter()

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Zero(t, summary.Copied)
	assert.Equal(t, 1, logs.FilterMessage("Protected folder does not exist").Len())
	assert.Empty(t, listTree(t, dest))
}

func TestImport_SkipsFilesWithoutTimestamp(t *testing.T) {
	src := card(t, map[string]string{
		"clip.mp4":              "x",
		"241399_083000_001.mp4": "x",
	})
	dest := t.TempDir()
	im, logs := newTestImporter()

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Copied)
	assert.Empty(t, listTree(t, dest))
	assert.Equal(t, 2, logs.FilterMessage("Skipping file without timestamp").Len())
}

func TestImport_NotRecursive(t *testing.T) {
	src := card(t, map[string]string{"240115_083000_001.mp4": "a"})
	nested := filepath.Join(src, "DCIM", "PROTECTED", "240116_000000_001.mp4")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "240117_000000_001.mp4"), []byte("b"), 0644))
	dest := t.TempDir()
	im, _ := newTestImporter()

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Copied)
	assert.NoDirExists(t, filepath.Join(dest, "2024-01-16"))
	assert.NoDirExists(t, filepath.Join(dest, "2024-01-17"))
}

func TestImport_OverwritesOnSecondRun(t *testing.T) {
	src := card(t, map[string]string{"240115_083000_001.MP4": "first"})
	dest := t.TempDir()
	im, _ := newTestImporter()

	_, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)

	clip := filepath.Join(src, "DCIM", "PROTECTED", "240115_083000_001.MP4")
	require.NoError(t, os.WriteFile(clip, []byte("2nd"), 0644))

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Copied)
	assert.Zero(t, summary.Failed)

	data, err := os.ReadFile(filepath.Join(dest, "2024-01-15", "240115_083000_001.MP4"))
	require.NoError(t, err)
	assert.Equal(t, "2nd", string(data))
}

func TestImport_CustomExtension(t *testing.T) {
	src := card(t, map[string]string{
		"240115_083000_001.MOV": "mov",
		"240115_083000_002.MP4": "mp4",
	})
	dest := t.TempDir()
	im, _ := newTestImporter(WithExtension("mov"))

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Copied)
	assert.FileExists(t, filepath.Join(dest, "2024-01-15", "240115_083000_001.MOV"))
	assert.NoFileExists(t, filepath.Join(dest, "2024-01-15", "240115_083000_002.MP4"))
}

func TestImport_CancelledBeforeCopy(t *testing.T) {
	src := card(t, map[string]string{"240115_083000_001.MP4": "video"})
	dest := t.TempDir()
	im, _ := newTestImporter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.Import(ctx, src, dest, "DCIM/PROTECTED")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listTree(t, dest))
}

func TestImport_RecordsAndRunID(t *testing.T) {
	src := card(t, map[string]string{
		"240115_083000_001.MP4": "abc",
		"240116_120000_002.MP4": "defg",
	})
	dest := t.TempDir()
	rec := &memRecorder{err: errors.New("disk full")}
	base, logs := newTestImporter(WithRecorder(rec))
	im := base.WithRun("run-1")

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	// 记录失败不影响复制
	assert.Equal(t, 2, summary.Copied)
	assert.Equal(t, int64(7), summary.Bytes)
	require.Len(t, rec.records, 2)
	for _, r := range rec.records {
		assert.Equal(t, "run-1", r.RunID)
	}
	assert.Equal(t, 2, logs.FilterMessage("Failed to journal import").Len())
	assert.Equal(t, "run-1", logs.FilterMessage("🏁 Import finished").All()[0].ContextMap()["run"])
}

func TestCopyFile_Failure(t *testing.T) {
	dest := t.TempDir()
	im, logs := newTestImporter()

	_, err := im.CopyFile(context.Background(), filepath.Join(t.TempDir(), "240115_083000_001.MP4"), dest)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, logs.FilterMessage("❌ Failed to copy file").Len())
}

func TestCopyFile_FolderAlreadyExists(t *testing.T) {
	src := card(t, map[string]string{"240115_083000_001.MP4": "video"})
	dest := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dest, "2024-01-15"), 0755))
	im, _ := newTestImporter()

	rec, err := im.CopyFile(context.Background(), filepath.Join(src, "DCIM", "PROTECTED", "240115_083000_001.MP4"), dest)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", rec.Folder)
	assert.Equal(t, int64(5), rec.Size)
}

func TestCopyFile_WarnsOnNonVideo(t *testing.T) {
	png := string([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'})
	src := card(t, map[string]string{"240115_083000_001.MP4": png})
	dest := t.TempDir()
	im, logs := newTestImporter()

	_, err := im.CopyFile(context.Background(), filepath.Join(src, "DCIM", "PROTECTED", "240115_083000_001.MP4"), dest)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("⚠️ File does not look like a video").Len())
	assert.FileExists(t, filepath.Join(dest, "2024-01-15", "240115_083000_001.MP4"))
}

func TestImport_ReadOnlyClipReimported(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	src := card(t, map[string]string{"240115_083000_001.MP4": "locked"})
	clip := filepath.Join(src, "DCIM", "PROTECTED", "240115_083000_001.MP4")
	require.NoError(t, os.Chmod(clip, 0444))
	dest := t.TempDir()
	im, _ := newTestImporter()

	first, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	require.Equal(t, 1, first.Copied)

	second, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Copied)
	assert.Zero(t, second.Failed)
}

func TestImport_ReplacesReadOnlyCopy(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	src := card(t, map[string]string{"240115_083000_001.MP4": "new"})
	dest := t.TempDir()
	// 旧版本留下的只读副本
	old := filepath.Join(dest, "2024-01-15", "240115_083000_001.MP4")
	require.NoError(t, os.Mkdir(filepath.Dir(old), 0755))
	require.NoError(t, os.WriteFile(old, []byte("old"), 0444))
	im, _ := newTestImporter()

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Copied)

	data, err := os.ReadFile(old)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestImport_OneCopyFailureDoesNotStopBatch(t *testing.T) {
	src := card(t, map[string]string{
		"240115_083000_001.MP4": "a",
		"240115_090000_002.MP4": "bb",
		"240116_100000_003.MP4": "ccc",
	})
	dest := t.TempDir()
	// 目标位置已经有同名目录，复制必然失败
	blocker := filepath.Join(dest, "2024-01-15", "240115_090000_002.MP4")
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0755))
	im, logs := newTestImporter()

	summary, err := im.Import(context.Background(), src, dest, "DCIM/PROTECTED")
	require.NoError(t, err)
	assert.Equal(t, Summary{Matched: 3, Copied: 2, Failed: 1, Bytes: 4}, summary)
	assert.FileExists(t, filepath.Join(dest, "2024-01-15", "240115_083000_001.MP4"))
	assert.FileExists(t, filepath.Join(dest, "2024-01-16", "240116_100000_003.MP4"))

	failed := logs.FilterMessage("❌ Failed to copy file").All()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ContextMap()["file"], "240115_090000_002.MP4")
	assert.NotEmpty(t, failed[0].ContextMap()["error"])
}
