package kafka

import "fmt"

// CanalMessage Canal 推送到 Kafka 的 binlog 结构
type CanalMessage struct {
	ID       int64    `json:"id"`
	Database string   `json:"database"`
	Table    string   `json:"table"`
	PKNames  []string `json:"pkNames"`
	IsDDL    bool     `json:"isDdl"`
	Type     string   `json:"type"`
	ES       int64    `json:"es"`
	TS       int64    `json:"ts"`

	// Data 变更后的行，列值统一为字符串
	Data []map[string]interface{} `json:"data"`
	// Old 变更前被修改的列
	Old []map[string]interface{} `json:"old"`
}

// Column 读取一列的字符串值，列不存在或为 null 时返回空串
func Column(row map[string]interface{}, name string) string {
	v, ok := row[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
