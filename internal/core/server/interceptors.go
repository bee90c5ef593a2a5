package server

import (
	"context"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/policysmith/internal/core/metrics"
)

// recoveryInterceptor turns handler panics into INTERNAL errors.
func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "handler panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// observeInterceptor logs every request and records it in collector.
func observeInterceptor(logger *slog.Logger, collector *metrics.Collector) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		method := path.Base(info.FullMethod)
		if collector != nil {
			collector.ObserveRequest(method, code.String(), elapsed)
		}

		level := slog.LevelDebug
		attrs := []any{"method", method, "code", code.String(), "duration", elapsed}
		switch code {
		case codes.OK:
		case codes.InvalidArgument, codes.NotFound, codes.Canceled:
			level = slog.LevelInfo
			attrs = append(attrs, "error", err)
		default:
			level = slog.LevelError
			attrs = append(attrs, "error", err)
		}
		logger.Log(ctx, level, "grpc request", attrs...)
		return resp, err
	}
}

// timeoutInterceptor bounds each request by d.
func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
