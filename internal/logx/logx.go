package logx

import (
	"context"

	"pkt.systems/browserx/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	tabKey contextKey = iota
	requestKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithTab annotates the logger with the tab id if present.
func WithTab(ctx context.Context, tabID schema.TabID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if tabID != 0 {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", int64(tabID))
	}
	return log
}

// WithRequest annotates the logger with tab and request identifiers.
func WithRequest(ctx context.Context, tabID schema.TabID, requestID schema.RequestID, kind schema.RequestKind) pslog.Logger {
	log := WithTab(ctx, tabID)
	if requestID != "" {
		if current, ok := ctx.Value(requestKey).(schema.RequestID); ok && current == requestID {
			return log
		}
		log = log.With("request", string(requestID))
	}
	if kind != "" {
		log = log.With("kind", string(kind))
	}
	return log
}

// WithGeneration annotates the logger with the page lifetime.
func WithGeneration(log pslog.Logger, gen schema.Generation) pslog.Logger {
	if gen != 0 {
		log = log.With("generation", uint64(gen))
	}
	return log
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == 0 {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithRequest stores the request marker on the context for log de-duplication.
func ContextWithRequest(ctx context.Context, requestID schema.RequestID) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, requestID)
}

// ContextWithTabLogger attaches the logger and tab marker to the context.
func ContextWithTabLogger(ctx context.Context, log pslog.Logger, tabID schema.TabID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ctx, tabID)
}

// CopyContextFields copies tab/request markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if tab, ok := src.Value(tabKey).(schema.TabID); ok && tab != 0 {
		dst = ContextWithTab(dst, tab)
	}
	if req, ok := src.Value(requestKey).(schema.RequestID); ok && req != "" {
		dst = ContextWithRequest(dst, req)
	}
	return dst
}
