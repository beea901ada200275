package router

import (
	"context"
)

type ctxKey string

// CtxRequestIDKey carries the request id assigned by the RequestID middleware.
const CtxRequestIDKey ctxKey = "requestID"

// GetRequestID returns the request id stored on ctx.
func GetRequestID(ctx context.Context) (string, bool) {
	v := ctx.Value(CtxRequestIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
