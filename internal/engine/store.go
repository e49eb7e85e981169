package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"evocode-datagen/pkg/errors"
	"evocode-datagen/pkg/logger"
)

const (
	// artifactFileName 产物记录文件（JSON Lines，逐行追加）
	artifactFileName = "results.jsonl"
	// identifierFileName 内容标识日志（每行一个标识）
	identifierFileName = "hash_table.txt"
)

// Record 一条待持久化的产物记录
type Record struct {
	// UID 内容标识
	UID string
	// Fields 记录字段，落盘时注入 uid 字段
	Fields map[string]any
}

// Store 追加式产物存储
//
// 维护两个只追加的文件：产物记录与内容标识日志。
// 写入顺序有严格要求：产物先于标识落盘并同步，
// 保证标识日志里的每个条目都对应已持久化的产物。
// 反向的不一致（产物已写、标识未写）是安全的，
// 重启后只会导致一次重复生成被去重丢弃。
type Store struct {
	dir          string
	artifactPath string
	idPath       string
	known        map[string]struct{}
	log          *slog.Logger
}

// OpenStore 打开（必要时创建）指定目录下的存储
//
// 启动时加载标识日志重建去重集合，产物文件不读取。
func OpenStore(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = logger.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodePersistenceFailed, "create output dir")
	}

	s := &Store{
		dir:          dir,
		artifactPath: filepath.Join(dir, artifactFileName),
		idPath:       filepath.Join(dir, identifierFileName),
		known:        make(map[string]struct{}),
		log:          log,
	}

	if err := s.loadIdentifiers(); err != nil {
		return nil, err
	}

	log.Info("store opened",
		"dir", dir,
		"known_identifiers", len(s.known),
	)
	return s, nil
}

// loadIdentifiers 从标识日志重建去重集合
func (s *Store) loadIdentifiers() error {
	f, err := os.Open(s.idPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.CodePersistenceFailed, "open identifier log")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		uid := strings.TrimSpace(scanner.Text())
		if uid != "" {
			s.known[uid] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.CodePersistenceFailed, "scan identifier log")
	}
	return nil
}

// Contains 判断标识是否已持久化
func (s *Store) Contains(uid string) bool {
	_, ok := s.known[uid]
	return ok
}

// Len 返回已持久化的标识数
func (s *Store) Len() int {
	return len(s.known)
}

// Dir 返回存储目录
func (s *Store) Dir() string {
	return s.dir
}

// Append 批量追加记录
//
// 先把全部产物写入记录文件并 fsync，成功后才把标识追加到
// 标识日志并 fsync。任一步失败即返回错误，去重集合不更新，
// 调用方保留缓冲以便恢复。
func (s *Store) Append(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	if err := s.appendArtifacts(records); err != nil {
		return err
	}
	if err := s.appendIdentifiers(records); err != nil {
		return err
	}

	for _, r := range records {
		s.known[r.UID] = struct{}{}
	}

	s.log.Debug("records flushed",
		"count", len(records),
		"total", len(s.known),
	)
	return nil
}

// appendArtifacts 追加产物记录并同步到磁盘
func (s *Store) appendArtifacts(records []Record) error {
	f, err := os.OpenFile(s.artifactPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.CodePersistenceFailed, "open artifact file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, r := range records {
		line, err := marshalRecord(r)
		if err != nil {
			return errors.Wrap(err, errors.CodePersistenceFailed, "encode record")
		}
		if _, err := w.Write(line); err != nil {
			return errors.Wrap(err, errors.CodePersistenceFailed, "write artifact record")
		}
		if err := w.WriteByte('\n'); err != nil {
			return errors.Wrap(err, errors.CodePersistenceFailed, "write artifact record")
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, errors.CodePersistenceFailed, "flush artifact file")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, errors.CodePersistenceFailed, "sync artifact file")
	}
	return nil
}

// appendIdentifiers 追加内容标识并同步到磁盘
func (s *Store) appendIdentifiers(records []Record) error {
	f, err := os.OpenFile(s.idPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.CodePersistenceFailed, "open identifier log")
	}
	defer f.Close()

	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.UID)
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return errors.Wrap(err, errors.CodePersistenceFailed, "write identifier log")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, errors.CodePersistenceFailed, "sync identifier log")
	}
	return nil
}

// marshalRecord 序列化记录，uid 字段合并进记录字段
func marshalRecord(r Record) ([]byte, error) {
	obj := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj["uid"] = r.UID
	line, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.UID, err)
	}
	return line, nil
}
