package subscriber

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ImportEntry 导入文件中的一条记录，只关心邮箱和名字。
type ImportEntry struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ImportFailure 导入失败的记录。
type ImportFailure struct {
	Email string
	Err   error
}

// ImportReport 批量导入结果。
type ImportReport struct {
	Imported int
	Failures []ImportFailure
}

// Failed 返回失败条数。
func (r ImportReport) Failed() int {
	return len(r.Failures)
}

// ParseImport 解析导入文件，支持 {"subscribers": [...]} 和裸数组两种格式。
func ParseImport(data []byte) ([]ImportEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("导入文件为空")
	}

	var entries []ImportEntry
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("解析导入文件失败: %w", err)
		}
		return entries, nil
	}

	var doc struct {
		Subscribers []ImportEntry `json:"subscribers"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("解析导入文件失败: %w", err)
	}
	return doc.Subscribers, nil
}

// Import 逐条调用 Subscribe，单条失败不影响其余记录。
func (s *Store) Import(entries []ImportEntry) ImportReport {
	var report ImportReport
	for _, e := range entries {
		if _, err := s.Subscribe(e.Email, e.Name); err != nil {
			report.Failures = append(report.Failures, ImportFailure{Email: e.Email, Err: err})
			continue
		}
		report.Imported++
	}
	return report
}
