package datagen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// loadRecords 从 JSONL 文件加载上游记录
//
// 单行解析失败只告警跳过，不中断加载。文件不存在返回错误，
// 由调用方映射为输入缺失。
func loadRecords(path string, log *slog.Logger) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", path, err)
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	// 题面与实现可能很长，放宽单行上限
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Warn("skipping malformed record", "file", path, "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input file %s: %w", path, err)
	}
	return records, nil
}

// fieldString 从记录字段取字符串，缺失或类型不符返回空串
func fieldString(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// fieldBool 从记录字段取布尔值，缺失时返回默认值
func fieldBool(fields map[string]any, key string, def bool) bool {
	if fields == nil {
		return def
	}
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return def
}
