package server

import "context"

type contextKey int

const (
	ctxKeySubject contextKey = iota
	ctxKeyRequestID
)

func contextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKeySubject, subject)
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
