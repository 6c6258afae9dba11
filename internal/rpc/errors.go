package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/altair/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Code maps an error kind to a gRPC status code.
func Code(err error) codes.Code {
	var e *common.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.Canceled) {
			return codes.Canceled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return codes.DeadlineExceeded
		}
		return codes.Internal
	}
	switch e.Kind {
	case common.KindNotFound:
		return codes.NotFound
	case common.KindValidation:
		return codes.InvalidArgument
	case common.KindConflict:
		if e.Reason == common.ReasonDuplicate {
			return codes.AlreadyExists
		}
		return codes.FailedPrecondition
	case common.KindAuth:
		if e.Reason == common.ReasonAccountDisabled {
			return codes.PermissionDenied
		}
		return codes.Unauthenticated
	case common.KindStorage, common.KindNetwork:
		return codes.Unavailable
	}
	return codes.Internal
}

// ServerError converts err into a status error and attaches the typed error
// as a trailer. Storage causes are not sent to clients.
func ServerError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var e *common.Error
	if errors.As(err, &e) {
		wire := *e
		wire.Err = nil
		if b, mErr := json.Marshal(&wire); mErr == nil {
			_ = grpc.SetTrailer(ctx, metadata.Pairs(common.ErrorTrailerName, string(b)))
		}
		msg := e.Message
		if msg == "" {
			msg = string(e.Kind)
		}
		return status.Error(Code(err), msg)
	}
	return status.Error(Code(err), "internal error")
}

// ClientError rebuilds the typed error from the trailer, falling back to the
// status code when the trailer is absent.
func ClientError(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	if vals := trailer.Get(common.ErrorTrailerName); len(vals) > 0 {
		var e common.Error
		if json.Unmarshal([]byte(vals[0]), &e) == nil && e.Kind != "" {
			return &e
		}
	}
	st, ok := status.FromError(err)
	if !ok {
		return common.ConnectionFailed(err)
	}
	switch st.Code() {
	case codes.Unavailable:
		return common.ConnectionFailed(err)
	case codes.DeadlineExceeded:
		return common.Timeout(err)
	case codes.Canceled:
		return context.Canceled
	case codes.Unauthenticated:
		return common.AuthError(common.ReasonUnauthorized, st.Message())
	case codes.PermissionDenied:
		return common.AuthError(common.ReasonAccountDisabled, st.Message())
	case codes.NotFound:
		return &common.Error{Kind: common.KindNotFound, Message: st.Message()}
	case codes.InvalidArgument:
		return &common.Error{Kind: common.KindValidation, Message: st.Message()}
	}
	return common.ServerError(int(st.Code()), st.Message())
}
