package handler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kfcempoyee/gofiledrop/internal/registry/regpb"
)

// LoggingInterceptor пишет метод, код ответа и длительность каждого вызова.
// ожидаемые ответы (NotFound, истекший доступ) идут в debug.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.OK:
		case codes.NotFound, codes.FailedPrecondition, codes.InvalidArgument:
			level = slog.LevelDebug
		default:
			level = slog.LevelError
		}

		logger.Log(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// ConcurrencyLimiter ограничивает число одновременных RegisterFile:
// каждый вызов копирует целый файл в хранилище блобов.
type ConcurrencyLimiter struct {
	uploads *semaphore.Weighted
	limit   int64
}

func NewConcurrencyLimiter(maxUploads int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		uploads: semaphore.NewWeighted(int64(maxUploads)),
		limit:   int64(maxUploads),
	}
}

func (cl *ConcurrencyLimiter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod != regpb.RegisterFileFullMethod {
			return handler(ctx, req)
		}

		// свободного слота нет - сразу отказываем, без очереди
		if !cl.uploads.TryAcquire(1) {
			return nil, status.Errorf(codes.ResourceExhausted, "too many concurrent uploads, max %d", cl.limit)
		}
		defer cl.uploads.Release(1)

		return handler(ctx, req)
	}
}
