package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// 日志文件名前缀
const (
	TravelListName      = "travelList"
	MoveListName        = "moveList"
	GeolocationListName = "geolocationList"
)

// ListLog 以 JSON 数组保存的只追加列表文件
type ListLog[T any] struct {
	path string
}

// NewListLog 创建列表文件，路径为 dir/<name>.<version>.json
func NewListLog[T any](dir, name, version string) *ListLog[T] {
	return &ListLog[T]{path: filepath.Join(dir, fmt.Sprintf("%s.%s.json", name, version))}
}

// Path 文件路径
func (l *ListLog[T]) Path() string {
	return l.path
}

// EnsureExists 文件不存在时写入空数组
func (l *ListLog[T]) EnsureExists() error {
	_, err := os.Stat(l.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", l.path, err)
	}
	return l.Overwrite(nil)
}

// Read 读取全部记录，文件不存在时返回空
func (l *ListLog[T]) Read() ([]T, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.path, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Count 文件中的记录数，不解析记录本身
func (l *ListLog[T]) Count() (int, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", l.path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parse %s: %w", l.path, err)
	}
	return len(raw), nil
}

// Overwrite 原子地写入完整列表 (临时文件 + rename)
func (l *ListLog[T]) Overwrite(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.path, err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("rename %s: %w", l.path, err)
	}
	return nil
}

// WriteIfGrown 仅当磁盘上的记录数少于 items 时覆盖写入
func (l *ListLog[T]) WriteIfGrown(items []T) (bool, error) {
	count, err := l.Count()
	if err != nil {
		return false, err
	}
	if count >= len(items) {
		return false, nil
	}
	if err := l.Overwrite(items); err != nil {
		return false, err
	}
	return true, nil
}
