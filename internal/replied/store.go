package replied

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Phineas1500/Rat-Bot-Bluesky/internal/logger"
)

// Store 已回复帖子URI集合，由机器人进程独占持有。
// 集合只增不减，每次新增后立即整体重写持久化文件。
type Store struct {
	path string
	uris map[string]struct{}
}

// Load 从文件加载集合。文件不存在或内容损坏时返回空集合，不视为错误。
func Load(path string) *Store {
	s := &Store{
		path: path,
		uris: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("[Replied] 读取持久化文件失败，使用空集合: %v", err)
		}
		return s
	}

	var uris []string
	if err := json.Unmarshal(data, &uris); err != nil {
		logger.Warnf("[Replied] 持久化文件内容损坏，使用空集合: %v", err)
		return s
	}

	for _, uri := range uris {
		s.uris[uri] = struct{}{}
	}
	return s
}

// Contains 判断URI是否已回复过
func (s *Store) Contains(uri string) bool {
	_, ok := s.uris[uri]
	return ok
}

// Len 返回集合大小
func (s *Store) Len() int {
	return len(s.uris)
}

// Add 将URI加入集合并立即写穿到持久化文件。
// 写入失败时集合内的新增仍然保留，错误交由调用方记录。
func (s *Store) Add(uri string) error {
	s.uris[uri] = struct{}{}
	return s.save()
}

func (s *Store) save() error {
	uris := make([]string, 0, len(s.uris))
	for uri := range s.uris {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	data, err := json.Marshal(uris)
	if err != nil {
		return fmt.Errorf("序列化已回复集合失败: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("写入已回复集合失败: %w", err)
	}
	return nil
}
