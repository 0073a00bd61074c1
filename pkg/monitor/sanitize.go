package monitor

import (
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// 敏感字段名特征，按包含关系匹配，大小写不敏感
var sensitiveKeyMarkers = []string{
	"password",
	"token",
	"secret",
	"key",
	"auth",
	"session",
	"jwt",
	"apikey",
	"authorization",
	"cookie",
	"bearer",
}

func isSensitiveKey(key string) bool {
	lk := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lk, marker) {
			return true
		}
	}
	return false
}

// sanitizeContext 递归脱敏结构化上下文，敏感字段的值替换为占位符。
// 脱敏过程出错时丢弃出错字段，绝不让原始内容泄漏
func sanitizeContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		sanitized, ok := sanitizeValue(v)
		if !ok {
			continue
		}
		out[k] = sanitized
	}
	return out
}

// SanitizeHeaders 请求头脱敏，接入层传递原始头之前调用
func SanitizeHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = v
	}
	return out
}

func sanitizeValue(v interface{}) (out interface{}, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()

	switch t := v.(type) {
	case map[string]interface{}:
		return sanitizeContext(t), true
	case map[string]string:
		return SanitizeHeaders(t), true
	case []interface{}:
		list := make([]interface{}, 0, len(t))
		for _, item := range t {
			if sanitized, itemOK := sanitizeValue(item); itemOK {
				list = append(list, sanitized)
			}
		}
		return list, true
	default:
		return v, true
	}
}
