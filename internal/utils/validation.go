package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// 事件类型使用点分层级命名,如 "patient.admitted"、"order.shipped"
var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// SanitizeString 清理字符串,移除控制字符（保留换行符和制表符）
func SanitizeString(input string) string {
	var result strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// ValidateEventType 验证事件类型格式
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return ErrEmptyEventType
	}
	if len(eventType) > 128 {
		return ErrEventTypeTooLong
	}
	if !eventTypePattern.MatchString(eventType) {
		return ErrInvalidEventType
	}
	return nil
}

// ValidateIdentifier 验证主体/资源 ID 格式
// 只允许字母、数字、连字符、下划线,最大 64 字符
func ValidateIdentifier(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > 64 {
		return ErrIDTooLong
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, id)
	if !matched {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateName 验证展示名称
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}
	if len(trimmed) > 255 {
		return ErrNameTooLong
	}
	return nil
}

// TrimAndValidate 清理并验证字符串
func TrimAndValidate(s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrEmptyString
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", ErrStringTooLong
	}
	return SanitizeString(trimmed), nil
}

// 错误定义
var (
	ErrEmptyName        = &ValidationError{Code: "EMPTY_NAME", Message: "name cannot be empty"}
	ErrNameTooLong      = &ValidationError{Code: "NAME_TOO_LONG", Message: "name exceeds maximum length"}
	ErrEmptyID          = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat  = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong        = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrEmptyEventType   = &ValidationError{Code: "EMPTY_EVENT_TYPE", Message: "event type cannot be empty"}
	ErrEventTypeTooLong = &ValidationError{Code: "EVENT_TYPE_TOO_LONG", Message: "event type exceeds maximum length"}
	ErrInvalidEventType = &ValidationError{Code: "INVALID_EVENT_TYPE", Message: "event type must be lowercase dot-separated segments"}
	ErrEmptyString      = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong    = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
