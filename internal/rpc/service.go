// Package rpc exposes the current profiling snapshot over gRPC. Messages are
// protobuf well-known types, so no generated code is needed.
package rpc

import (
	"Go2NetProfile/internal/model"
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "netprofile.v1.ProfileService"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ProfileServiceServer is the server API for ProfileService.
type ProfileServiceServer interface {
	HealthCheck(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	GetProfile(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListUsers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	UsersByTag(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
}

// SnapshotSource provides the snapshot to serve.
type SnapshotSource interface {
	Current() *model.Snapshot
}

// Service implements ProfileServiceServer over a SnapshotSource.
type Service struct {
	source SnapshotSource
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(source SnapshotSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, logger: logger.Named("rpc")}
}

func (s *Service) HealthCheck(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	s.logger.Debug("received HealthCheck request")
	return wrapperspb.String("ok"), nil
}

// GetProfile returns one user's profile as a JSON-shaped Struct.
func (s *Service) GetProfile(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	user := req.GetValue()
	profile, ok := snap.Profiles[user]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown user %q", user)
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode profile: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to convert profile: %v", err)
	}
	return out, nil
}

// ListUsers returns every profiled user in sorted order.
func (s *Service) ListUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return stringList(snap.Profiles.Users())
}

// UsersByTag returns the users carrying a tag, sorted. Unknown tags yield an
// empty list.
func (s *Service) UsersByTag(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	snap, err := s.current()
	if err != nil {
		return nil, err
	}
	return stringList(snap.Profiles.TagIndex()[req.GetValue()])
}

func (s *Service) current() (*model.Snapshot, error) {
	snap := s.source.Current()
	if snap == nil {
		return nil, status.Error(codes.Unavailable, "no profiles available yet")
	}
	return snap, nil
}

func stringList(values []string) (*structpb.ListValue, error) {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build list: %v", err)
	}
	return list, nil
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv ProfileServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Req any, PReq interface {
	*Req
}](method string, call func(ProfileServiceServer, context.Context, PReq) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ProfileServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fmt.Sprintf("/%s/%s", ServiceName, method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ProfileServiceServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProfileServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("HealthCheck", func(s ProfileServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.HealthCheck(ctx, in)
		}),
		unaryHandler("GetProfile", func(s ProfileServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetProfile(ctx, in)
		}),
		unaryHandler("ListUsers", func(s ProfileServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ListUsers(ctx, in)
		}),
		unaryHandler("UsersByTag", func(s ProfileServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.UsersByTag(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{},
}
