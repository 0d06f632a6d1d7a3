package auth

import "context"

// contextKey 私有 context 键类型,避免与其他包的键冲突
type contextKey string

const (
	actorKey     contextKey = "actor_id"
	tenantKey    contextKey = "tenant_id"
	requestIDKey contextKey = "request_id"
	clientIPKey  contextKey = "client_ip"
	userAgentKey contextKey = "user_agent"
)

// WithActor 将操作者 ID 写入 context
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext 从 context 获取操作者 ID,缺失时返回空串
func ActorFromContext(ctx context.Context) string {
	return stringFromContext(ctx, actorKey)
}

// WithTenant 将租户 ID 写入 context
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext 从 context 获取租户 ID
func TenantFromContext(ctx context.Context) string {
	return stringFromContext(ctx, tenantKey)
}

// WithRequestID 将请求 ID 写入 context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext 从 context 获取请求 ID
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey)
}

// WithClientIP 将客户端 IP 写入 context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext 从 context 获取客户端 IP
func ClientIPFromContext(ctx context.Context) string {
	return stringFromContext(ctx, clientIPKey)
}

// WithUserAgent 将 User Agent 写入 context
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// UserAgentFromContext 从 context 获取 User Agent
func UserAgentFromContext(ctx context.Context) string {
	return stringFromContext(ctx, userAgentKey)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
