package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

/* ========================================================================
 * JSONB Type - PostgreSQL JSONB 映射（公共定义）
 * ========================================================================
 * 职责: 统一定义 JSONB 类型，供各业务模型的扩展属性字段共享使用
 * ======================================================================== */

// JSONB 自定义类型，用于 Gorm 映射 PostgreSQL JSONB 列。
// 隔离模型的扩展属性(attributes/labels)统一使用该类型存储。
type JSONB map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONB scan")
	}
	return json.Unmarshal(data, j)
}

// ToStringMap 将 JSONB 转换为 map[string]string，非字符串值做 JSON 序列化
func (j JSONB) ToStringMap() map[string]string {
	result := make(map[string]string, len(j))
	for k, v := range j {
		switch val := v.(type) {
		case string:
			result[k] = val
		case float64:
			result[k] = fmt.Sprintf("%v", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			if bytes, err := json.Marshal(v); err == nil {
				result[k] = string(bytes)
			}
		}
	}
	return result
}

// ToDoubleMap 将 JSONB 中的数值项转换为 map[string]float64，忽略非数值项
func (j JSONB) ToDoubleMap() map[string]float64 {
	result := make(map[string]float64)
	for k, v := range j {
		switch val := v.(type) {
		case float64:
			result[k] = val
		case int:
			result[k] = float64(val)
		case int64:
			result[k] = float64(val)
		}
	}
	return result
}
