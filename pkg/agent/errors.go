package agent

import (
	"fmt"
)

// ErrorKind 标识一次请求尝试失败的类别。
// 软错误（结果无效、部分结果）只触发重试，不计入批次硬错误配额；
// 硬错误（传输失败、非 2xx 状态、响应结构缺失）每个逻辑请求只计一次配额。
type ErrorKind int

const (
	ErrKindNone ErrorKind = iota
	// ErrKindResultInvalid AI 返回了响应但内容无效（软错误）
	ErrKindResultInvalid
	// ErrKindPartialResult 返回了可部分使用的结果，重试时保留最优部分结果（软错误）
	ErrKindPartialResult
	// ErrKindTransport 连接或传输失败（硬错误）
	ErrKindTransport
	// ErrKindHTTPStatus 非 2xx 状态码（硬错误）
	ErrKindHTTPStatus
	// ErrKindEnvelope 响应缺少预期字段或无法解析（硬错误）
	ErrKindEnvelope
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNone:
		return "none"
	case ErrKindResultInvalid:
		return "result_invalid"
	case ErrKindPartialResult:
		return "partial_result"
	case ErrKindTransport:
		return "transport"
	case ErrKindHTTPStatus:
		return "http_status"
	case ErrKindEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// AgentError 描述一次请求尝试的失败，显式携带错误类别与配额标记。
type AgentError struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// StatusCode 在 ErrKindHTTPStatus 时为响应状态码
	StatusCode int
	// Partial 在 ErrKindPartialResult 时携带合成的部分结果
	Partial any
	// BudgetCounted 为 true 时计入批次硬错误配额
	BudgetCounted bool
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewResultInvalid 构造软错误：返回内容无效，需要重试。
func NewResultInvalid(message string) *AgentError {
	return &AgentError{
		Kind:    ErrKindResultInvalid,
		Message: message,
	}
}

// NewPartialResult 构造软错误：返回内容部分可用，携带合成的部分结果重试。
func NewPartialResult(message string, partial any) *AgentError {
	return &AgentError{
		Kind:    ErrKindPartialResult,
		Message: message,
		Partial: partial,
	}
}

func newTransportError(cause error) *AgentError {
	return &AgentError{
		Kind:          ErrKindTransport,
		Message:       "request failed",
		Cause:         cause,
		BudgetCounted: true,
	}
}

func newHTTPStatusError(statusCode int, body string) *AgentError {
	return &AgentError{
		Kind:          ErrKindHTTPStatus,
		Message:       fmt.Sprintf("unexpected status %d: %s", statusCode, body),
		StatusCode:    statusCode,
		BudgetCounted: true,
	}
}

func newEnvelopeError(message string, cause error) *AgentError {
	return &AgentError{
		Kind:          ErrKindEnvelope,
		Message:       message,
		Cause:         cause,
		BudgetCounted: true,
	}
}
