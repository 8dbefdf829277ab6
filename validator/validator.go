package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

/* ========================================================================
 * Validator - 自定义验证器
 * ========================================================================
 * 职责: 提供带自定义错误消息的结构体验证
 * 特性:
 *   - 支持 error_msg 标签定义自定义错误消息
 *   - 支持嵌套结构体验证
 *   - 内置 isolation_id 规则验证多租户层级标识符
 *   - 类型缓存优化反射性能
 * 使用示例:
 *     type CreateTenantRequest struct {
 *         TenantID string `validate:"required,isolation_id" error_msg:"required:租户ID必填|isolation_id:租户ID格式错误"`
 *         Email    string `validate:"required,email" error_msg:"required:邮箱必填|email:邮箱格式错误"`
 *     }
 *     v := validator.New()
 *     if err := v.Validate(&req); err != nil {
 *         // 处理验证错误
 *     }
 * ======================================================================== */

// isolationIDPattern 层级标识符字符集: 字母、数字、连字符、下划线
// 覆盖 UUID、ULID 以及人工分配的短标识
var isolationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Validator 自定义验证器
type Validator struct {
	validator     *validator.Validate
	typeCache     *typeCache
	errorMsgCache map[string]map[string]string
	mu            sync.RWMutex
}

// New 创建新的验证器，并注册内置规则
func New() *Validator {
	v := &Validator{
		validator:     validator.New(),
		typeCache:     newTypeCache(),
		errorMsgCache: make(map[string]map[string]string),
	}

	// isolation_id: 租户/组织/部门/用户标识符格式
	_ = v.validator.RegisterValidation("isolation_id", func(fl validator.FieldLevel) bool {
		return isolationIDPattern.MatchString(fl.Field().String())
	})

	return v
}

// RegisterRule 注册自定义验证规则
func (v *Validator) RegisterRule(tag string, fn validator.Func) error {
	return v.validator.RegisterValidation(tag, fn)
}

// Validate 验证结构体
// 返回 *ValidationError，包含按字段分组的错误消息
func (v *Validator) Validate(s interface{}) error {
	if s == nil {
		return nil
	}

	result := &ValidationError{Errors: make(map[string][]string)}
	v.validateStruct(s, "", result)

	if result.HasErrors() {
		return result
	}
	return nil
}

// validateStruct 递归验证结构体及其嵌套字段
func (v *Validator) validateStruct(s interface{}, prefix string, result *ValidationError) {
	value := reflect.ValueOf(s)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return
	}

	for _, info := range v.typeCache.fields(value.Type()) {
		fieldValue := value.FieldByName(info.name)
		fieldName := info.name
		if prefix != "" {
			fieldName = fmt.Sprintf("%s.%s", prefix, info.name)
		}

		if info.isStruct {
			if info.isPtr {
				if fieldValue.IsNil() {
					continue
				}
				fieldValue = fieldValue.Elem()
			}
			v.validateStruct(fieldValue.Interface(), fieldName, result)
			continue
		}

		if info.validateTag == "" {
			continue
		}

		err := v.validator.Var(fieldValue.Interface(), info.validateTag)
		if err == nil {
			continue
		}

		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			result.Add(fieldName, err.Error())
			continue
		}

		for _, fieldErr := range fieldErrs {
			message := v.customMessage(info.errorMsgTag, fieldErr.Tag())
			if message == "" {
				message = fieldErr.Error()
			}
			result.Add(fieldName, message)
		}
	}
}

// customMessage 查找规则对应的自定义错误消息，解析结果按标签缓存
func (v *Validator) customMessage(errorMsgTag, rule string) string {
	if errorMsgTag == "" {
		return ""
	}

	v.mu.RLock()
	if ruleMap, exists := v.errorMsgCache[errorMsgTag]; exists {
		msg := ruleMap[rule]
		v.mu.RUnlock()
		return msg
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if ruleMap, exists := v.errorMsgCache[errorMsgTag]; exists {
		return ruleMap[rule]
	}

	ruleMap := parseErrorMessages(errorMsgTag)
	v.errorMsgCache[errorMsgTag] = ruleMap
	return ruleMap[rule]
}

// parseErrorMessages 解析错误消息标签
// 格式: "required:租户ID必填|isolation_id:租户ID格式错误"
func parseErrorMessages(errorMsgTag string) map[string]string {
	ruleMap := make(map[string]string)
	for _, pair := range strings.Split(errorMsgTag, ruleSeparator) {
		parts := strings.SplitN(pair, keyValueSep, 2)
		if len(parts) == 2 {
			ruleMap[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return ruleMap
}
