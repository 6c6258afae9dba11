package grpc

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// UserIDFromContext returns the caller authenticated by accessTokenInterceptor.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if rpc.PublicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, common.AuthError(common.ReasonUnauthorized, "missing token")
	}

	userID, err := s.deps.Users.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	return handler(context.WithValue(ctx, userIDKey, userID), req)
}

// errorInterceptor turns typed errors into status errors carrying the
// error trailer. Errors that already are statuses pass through.
func (s *GRPCServer) errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	var e *common.Error
	if _, ok := status.FromError(err); ok && !errors.As(err, &e) {
		return nil, err
	}
	return nil, rpc.ServerError(ctx, err)
}

func (s *GRPCServer) observeInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	method := path.Base(info.FullMethod)
	code := status.Code(err)
	s.deps.Metrics.RPCRequests.WithLabelValues(method, code.String()).Inc()
	s.deps.Metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())

	switch code {
	case codes.OK:
		s.logger.Debug(ctx, "rpc", "method", method, "duration", time.Since(start))
	case codes.Internal, codes.Unavailable, codes.Unknown:
		s.logger.Error(ctx, "rpc failed", "method", method, "code", code.String(), "error", err)
	default:
		s.logger.Info(ctx, "rpc rejected", "method", method, "code", code.String(), "error", err)
	}
	return resp, err
}
