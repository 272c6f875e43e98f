// SPDX-License-Identifier: Apache-2.0

package execution

import (
	"context"
)

// ActionContext flags whether work is running on the normal request
// path or inside a close-of-business batch run. It is carried on the
// context rather than in ambient global state, so the caller's value
// is structurally restored on every exit path of a scoped run.
type ActionContext string

const (
	ActionContextDefault ActionContext = "DEFAULT"
	ActionContextCOB     ActionContext = "COB"
)

type actionContextKey struct{}
type usernameContextKey struct{}
type idempotencyKeyContextKey struct{}

var ctxActionKey actionContextKey
var ctxUsernameKey usernameContextKey
var ctxIdempotencyKey idempotencyKeyContextKey

func WithActionContext(ctx context.Context, ac ActionContext) context.Context {
	return context.WithValue(ctx, ctxActionKey, ac)
}

func ActionContextFrom(ctx context.Context) ActionContext {
	v, ok := ctx.Value(ctxActionKey).(ActionContext)
	if !ok || v == "" {
		return ActionContextDefault
	}
	return v
}

// WithUsername stores the authenticated requester identity on the
// request context.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxUsernameKey, username)
}

func UsernameFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxUsernameKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxIdempotencyKey, key)
}

func IdempotencyKeyFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxIdempotencyKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
