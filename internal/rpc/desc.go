package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "moments.v1.Moments"

const (
	MethodPing                     = "Ping"
	MethodCapture                  = "Capture"
	MethodOpenVideo                = "OpenVideo"
	MethodVideos                   = "Videos"
	MethodVideo                    = "Video"
	MethodMomentsForVideo          = "MomentsForVideo"
	MethodSearch                   = "Search"
	MethodTotalMoments             = "TotalMoments"
	MethodUpdateMoment             = "UpdateMoment"
	MethodDeleteMoment             = "DeleteMoment"
	MethodDeleteAllMomentsForVideo = "DeleteAllMomentsForVideo"
	MethodDeleteVideo              = "DeleteVideo"
	MethodClearAll                 = "ClearAll"
	MethodMerge                    = "Merge"
	MethodReplace                  = "Replace"
	MethodSubscribe                = "Subscribe"
)

// FullMethod is the path gRPC routes name on.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// momentsHandler is what RegisterService checks the implementation
// against.
type momentsHandler interface {
	handles() string
}

func unary[Req, Resp proto.Message](name string, newReq func() Req, fn func(*Server, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return fn(srv.(*Server), ctx, req.(Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty    { return &emptypb.Empty{} }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*momentsHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, newEmpty, (*Server).ping),
		unary(MethodCapture, newStruct, (*Server).capture),
		unary(MethodOpenVideo, newStruct, (*Server).openVideo),
		unary(MethodVideos, newEmpty, (*Server).videos),
		unary(MethodVideo, newStruct, (*Server).video),
		unary(MethodMomentsForVideo, newStruct, (*Server).momentsForVideo),
		unary(MethodSearch, newStruct, (*Server).search),
		unary(MethodTotalMoments, newEmpty, (*Server).totalMoments),
		unary(MethodUpdateMoment, newStruct, (*Server).updateMoment),
		unary(MethodDeleteMoment, newStruct, (*Server).deleteMoment),
		unary(MethodDeleteAllMomentsForVideo, newStruct, (*Server).deleteAllMomentsForVideo),
		unary(MethodDeleteVideo, newStruct, (*Server).deleteVideo),
		unary(MethodClearAll, newEmpty, (*Server).clearAll),
		unary(MethodMerge, newStruct, (*Server).merge),
		unary(MethodReplace, newStruct, (*Server).replace),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodSubscribe,
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				in := newEmpty()
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(*Server).subscribe(in, stream)
			},
		},
	},
	Metadata: "moments/v1/moments.proto",
}
