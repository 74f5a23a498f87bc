package control

import "context"

type callerKey struct{}

// WithCaller 把宿主论坛注入的用户 uid 放进 context
func WithCaller(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, callerKey{}, uid)
}

// CallerFrom 取出 uid，未登录时返回空串
func CallerFrom(ctx context.Context) string {
	uid, _ := ctx.Value(callerKey{}).(string)
	return uid
}
