package validator

import (
	"reflect"
	"sync"
)

/* ========================================================================
 * Type Cache - 类型信息缓存
 * ========================================================================
 * 职责: 缓存结构体字段的标签解析结果，避免重复反射
 * ======================================================================== */

// fieldInfo 字段信息
type fieldInfo struct {
	name        string // 字段名
	validateTag string // validate 标签值
	errorMsgTag string // error_msg 标签值
	isStruct    bool   // 是否为结构体
	isPtr       bool   // 是否为指针类型
}

// typeCache 类型缓存
type typeCache struct {
	mu    sync.RWMutex
	cache map[reflect.Type][]fieldInfo
}

// newTypeCache 创建类型缓存
func newTypeCache() *typeCache {
	return &typeCache{
		cache: make(map[reflect.Type][]fieldInfo),
	}
}

// fields 获取类型的字段信息，未命中时解析并写入缓存
func (tc *typeCache) fields(t reflect.Type) []fieldInfo {
	tc.mu.RLock()
	info, exists := tc.cache[t]
	tc.mu.RUnlock()
	if exists {
		return info
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	// 双重检查，避免并发 goroutine 重复解析同一类型
	if info, exists := tc.cache[t]; exists {
		return info
	}

	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			// 未导出字段的 Interface() 会 panic，直接跳过
			continue
		}

		fieldType := field.Type
		isPtr := fieldType.Kind() == reflect.Ptr
		if isPtr {
			fieldType = fieldType.Elem()
		}

		fields = append(fields, fieldInfo{
			name:        field.Name,
			validateTag: field.Tag.Get("validate"),
			errorMsgTag: field.Tag.Get(tagCustom),
			isStruct:    fieldType.Kind() == reflect.Struct,
			isPtr:       isPtr,
		})
	}

	tc.cache[t] = fields
	return fields
}
