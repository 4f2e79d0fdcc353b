package auth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type userContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx for flows reached
// without a [Request], such as cron jobs acting as the super user.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the IP attached by [WithClientIP], "" if none.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// WithUserAgent attaches the caller's User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// UserAgentFromContext returns the agent attached by [WithUserAgent], "" if
// none.
func UserAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	agent, _ := ctx.Value(userAgentContextKey{}).(string)
	return agent
}

// WithUser attaches the resolved principal to ctx. This is how downstream
// authorization receives the identity: explicit context, never a process-wide
// singleton, so concurrent requests cannot cross-contaminate.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the principal attached by [WithUser], nil if none.
func UserFromContext(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}
