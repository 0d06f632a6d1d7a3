package service

import (
	"errors"
	"fmt"
)

// ErrorKind 领域错误种类
// API 层据此映射传输层状态码,服务层内部据此决定是否重试
type ErrorKind int

const (
	// KindNotFound 主体/Schema/工作流/事件不存在,调用方不应重试
	KindNotFound ErrorKind = iota
	// KindValidationFailed payload 不符合 Schema 定义,调用方不应重试
	KindValidationFailed
	// KindTemporalOrderViolation event_time 不晚于链尾,调用方需提供更晚的时间
	KindTemporalOrderViolation
	// KindChainConflict 并发写入者竞争链尾失败,调用方可重读链尾后重试
	KindChainConflict
	// KindImmutabilityViolation 试图修改已提交事件,属程序缺陷,永不静默
	KindImmutabilityViolation
	// KindConflict 其他唯一性冲突(如并发创建同一 Schema 版本)
	KindConflict
)

// DomainError 带种类的领域错误
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFound 构造不存在错误
func NewNotFound(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewValidationFailed 构造校验失败错误
func NewValidationFailed(message string, err error) *DomainError {
	return &DomainError{Kind: KindValidationFailed, Message: message, Err: err}
}

// NewTemporalOrderViolation 构造时序违例错误
func NewTemporalOrderViolation(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindTemporalOrderViolation, Message: fmt.Sprintf(format, args...)}
}

// NewChainConflict 构造链尾竞争冲突错误
func NewChainConflict(message string, err error) *DomainError {
	return &DomainError{Kind: KindChainConflict, Message: message, Err: err}
}

// NewImmutabilityViolation 构造不可变性违例错误
func NewImmutabilityViolation(message string, err error) *DomainError {
	return &DomainError{Kind: KindImmutabilityViolation, Message: message, Err: err}
}

// NewConflict 构造一般性冲突错误
func NewConflict(message string, err error) *DomainError {
	return &DomainError{Kind: KindConflict, Message: message, Err: err}
}

// IsKind 判断错误是否属于指定种类
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind == kind
	}
	return false
}
