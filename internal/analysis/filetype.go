package analysis

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
)

// Result 检测结果
type Result struct {
	IsMasquerade bool   // 后缀与文件头不符
	RealExt      string // 真实的类型后缀 (根据文件头)
	DeclaredExt  string // 声明的后缀 (文件名)
	IsVideo      bool   // 文件头是视频容器
	Message      string
}

// TypeInspector 根据文件头判断行车记录仪文件是否真的是视频
type TypeInspector struct {
	aliasMap map[string]map[string]bool
	mu       sync.RWMutex
}

func NewTypeInspector() *TypeInspector {
	inspector := &TypeInspector{
		aliasMap: make(map[string]map[string]bool),
	}
	inspector.initRules()
	return inspector
}

// initRules 合法的“表里不一”
func (t *TypeInspector) initRules() {
	allow := func(realType string, allowedExts ...string) {
		if _, ok := t.aliasMap[realType]; !ok {
			t.aliasMap[realType] = make(map[string]bool)
		}
		t.aliasMap[realType][realType] = true
		for _, ext := range allowedExts {
			t.aliasMap[realType][ext] = true
		}
	}

	// ISO BMFF 家族，部分行车记录仪写出的 brand 是 qt 或 M4V
	allow("mp4", "m4v", "mov", "qt")
	allow("mov", "qt", "mp4")
	allow("m4v", "mp4")
	allow("3gp", "mp4")
}

// AllowAlias 追加一条兼容规则
func (t *TypeInspector) AllowAlias(realType, declaredExt string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.aliasMap[realType]; !ok {
		t.aliasMap[realType] = map[string]bool{realType: true}
	}
	t.aliasMap[realType][strings.ToLower(declaredExt)] = true
}

// Inspect 执行检测
func (t *TypeInspector) Inspect(filePath string) (*Result, error) {
	rawExt := filepath.Ext(filePath)
	declaredExt := strings.ToLower(strings.TrimPrefix(rawExt, "."))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file failed: %w", err)
	}
	defer file.Close()

	// 262 bytes 是 filetype 库建议的头部长度
	head := make([]byte, 262)
	n, err := io.ReadFull(file, head)
	if n == 0 {
		if err == io.EOF {
			return &Result{DeclaredExt: declaredExt, RealExt: "unknown", Message: "Empty file"}, nil
		}
		return nil, fmt.Errorf("read header failed: %w", err)
	}
	head = head[:n]

	kind, _ := filetype.Match(head)

	// 未知签名：可能是写了一半的录像，默认放行
	if kind == filetype.Unknown {
		return &Result{
			RealExt:     "unknown",
			DeclaredExt: declaredExt,
			Message:     "Unknown binary signature",
		}, nil
	}

	realExt := kind.Extension
	isVideo := filetype.IsVideo(head)

	if realExt == declaredExt {
		return &Result{RealExt: realExt, DeclaredExt: declaredExt, IsVideo: isVideo}, nil
	}

	t.mu.RLock()
	allowedMap, exists := t.aliasMap[realExt]
	allowed := exists && allowedMap[declaredExt]
	t.mu.RUnlock()

	if allowed {
		return &Result{
			RealExt:     realExt,
			DeclaredExt: declaredExt,
			IsVideo:     isVideo,
			Message:     fmt.Sprintf("Allowed alias: %s is compatible with %s", declaredExt, realExt),
		}, nil
	}

	return &Result{
		IsMasquerade: true,
		RealExt:      realExt,
		DeclaredExt:  declaredExt,
		IsVideo:      isVideo,
		Message:      fmt.Sprintf("Type Mismatch! Header is '%s' but file is '%s'", realExt, declaredExt),
	}, nil
}
