package api

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// SLAConfig SLA 配置
type SLAConfig struct {
	EventAppendMaxTime  time.Duration // 单条事件追加最大响应时间
	BulkAppendMaxTime   time.Duration // 批量追加最大响应时间
	ChainQueryMaxTime   time.Duration // 链查询最大响应时间
	VerificationMaxTime time.Duration // 链校验最大响应时间
}

// DefaultSLAConfig 返回默认 SLA 配置
func DefaultSLAConfig() *SLAConfig {
	return &SLAConfig{
		EventAppendMaxTime:  1 * time.Second,
		BulkAppendMaxTime:   5 * time.Second,
		ChainQueryMaxTime:   500 * time.Millisecond,
		VerificationMaxTime: 10 * time.Second,
	}
}

// getOperation 从请求路径和方法获取操作类型
func getOperation(c *gin.Context) string {
	method := c.Request.Method
	path := c.Request.URL.Path

	// 根据路径和方法判断操作类型
	if strings.HasSuffix(path, "/events/bulk") && method == "POST" {
		return "bulk_append"
	}
	if strings.HasSuffix(path, "/events") && method == "POST" {
		return "event_append"
	}
	if strings.Contains(path, "/chain") && method == "GET" {
		return "chain_query"
	}
	if strings.Contains(path, "/verify") {
		return "verification"
	}

	return "unknown"
}

// CheckSLA 检查 SLA
func CheckSLA(operation string, duration time.Duration, config *SLAConfig) bool {
	switch operation {
	case "event_append":
		return duration <= config.EventAppendMaxTime
	case "bulk_append":
		return duration <= config.BulkAppendMaxTime
	case "chain_query":
		return duration <= config.ChainQueryMaxTime
	case "verification":
		return duration <= config.VerificationMaxTime
	default:
		return true // 未知操作不检查 SLA
	}
}

// getExpectedDuration 获取期望的响应时间
func getExpectedDuration(operation string, config *SLAConfig) time.Duration {
	switch operation {
	case "event_append":
		return config.EventAppendMaxTime
	case "bulk_append":
		return config.BulkAppendMaxTime
	case "chain_query":
		return config.ChainQueryMaxTime
	case "verification":
		return config.VerificationMaxTime
	default:
		return 0
	}
}

// SLAViolation SLA 违反记录
type SLAViolation struct {
	Operation string
	Duration  time.Duration
	Expected  time.Duration
	Timestamp time.Time
	Path      string
	Method    string
}

// SLAAlertManager SLA 告警管理器
type SLAAlertManager struct {
	violations     map[string][]SLAViolation
	thresholds     map[string]int
	alertCallbacks []func(string, []SLAViolation)
	mu             sync.RWMutex
}

// NewSLAAlertManager 创建 SLA 告警管理器
func NewSLAAlertManager() *SLAAlertManager {
	return &SLAAlertManager{
		violations:     make(map[string][]SLAViolation),
		thresholds:     make(map[string]int),
		alertCallbacks: make([]func(string, []SLAViolation), 0),
	}
}

// RecordViolation 记录 SLA 违反
func (m *SLAAlertManager) RecordViolation(operation string, violation SLAViolation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.violations[operation] = append(m.violations[operation], violation)

	// 检查是否达到告警阈值
	threshold := m.thresholds[operation]
	if threshold > 0 && len(m.violations[operation]) >= threshold {
		// 触发告警
		m.triggerAlert(operation)
	}
}

// SetAlertThreshold 设置告警阈值
func (m *SLAAlertManager) SetAlertThreshold(operation string, threshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[operation] = threshold
}

// OnAlert 注册告警回调
func (m *SLAAlertManager) OnAlert(callback func(string, []SLAViolation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertCallbacks = append(m.alertCallbacks, callback)
}

// GetViolations 获取违反记录
func (m *SLAAlertManager) GetViolations(operation string) []SLAViolation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.violations[operation]
}

// triggerAlert 触发告警
func (m *SLAAlertManager) triggerAlert(operation string) {
	violations := m.violations[operation]
	for _, callback := range m.alertCallbacks {
		callback(operation, violations)
	}
}

// SLAMonitorMiddlewareWithAlert SLA 监控中间件（带告警）
func SLAMonitorMiddlewareWithAlert(config *SLAConfig, alertManager *SLAAlertManager) gin.HandlerFunc {
	if config == nil {
		config = DefaultSLAConfig()
	}

	return func(c *gin.Context) {
		start := time.Now()
		operation := getOperation(c)

		c.Next()

		duration := time.Since(start)
		if !CheckSLA(operation, duration, config) {
			// 记录 SLA 违反
			violation := SLAViolation{
				Operation: operation,
				Duration:  duration,
				Expected:  getExpectedDuration(operation, config),
				Timestamp: time.Now(),
				Path:      c.Request.URL.Path,
				Method:    c.Request.Method,
			}

			if alertManager != nil {
				alertManager.RecordViolation(operation, violation)
			}

			// 设置响应头
			c.Header("X-SLA-Violation", "true")
			c.Header("X-SLA-Operation", operation)
			c.Header("X-SLA-Duration", duration.String())
			c.Header("X-SLA-Expected", violation.Expected.String())
		}
	}
}
