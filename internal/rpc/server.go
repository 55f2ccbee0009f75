// Package rpc exposes the moments service over gRPC and provides a client
// that implements the same interface.
package rpc

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/moments"
)

// subscribedHeader is sent once a Subscribe stream is registered.
const subscribedHeader = "x-moments-subscribed"

// Backend is what the server serves: the moments service plus bulk
// import.
type Backend interface {
	moments.Service
	export.Target
}

type Server struct {
	address   string
	backend   Backend
	logger    logging.Logger
	jwtSecret []byte

	// stopping is closed on shutdown so open streams end and
	// GracefulStop can return.
	stopping chan struct{}
	stopOnce sync.Once
}

func NewServer(address string, l logging.Logger, backend Backend, secretKey string) *Server {
	return &Server{
		address:   address,
		backend:   backend,
		logger:    logging.OrNop(l).With("module", "grpc_server"),
		jwtSecret: []byte(secretKey),
		stopping:  make(chan struct{}),
	}
}

func (s *Server) handles() string { return ServiceName }

// NewGRPCServer builds a grpc.Server with the auth interceptors and the
// service registered.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	if len(s.jwtSecret) == 0 {
		s.logger.Warn(context.Background(), "secret key is empty, requests are not authenticated")
	}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := s.NewGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.stopOnce.Do(func() { close(s.stopping) })
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())

	if err := srv.Serve(l); err != nil {
		return err
	}
	return nil
}

func (s *Server) ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	return &emptypb.Empty{}, nil
}

func (s *Server) capture(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req captureMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}

	m, err := s.backend.Capture(ctx, moments.CaptureRequest{
		VideoID:      req.VideoID,
		Timestamp:    req.Timestamp,
		Duration:     req.Duration,
		Title:        req.Title,
		ThumbnailURL: req.ThumbnailURL,
		URL:          req.URL,
		Notes:        req.Notes,
		Tags:         req.Tags,
	})
	if err != nil {
		return nil, s.fail(ctx, MethodCapture, err)
	}
	return reply(momentMsg{Moment: m})
}

func (s *Server) openVideo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req urlMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	v, err := s.backend.OpenVideo(ctx, req.URL)
	if err != nil {
		return nil, s.fail(ctx, MethodOpenVideo, err)
	}
	return reply(videoMsg{Video: v})
}

func (s *Server) videos(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	videos, err := s.backend.Videos(ctx)
	if err != nil {
		return nil, s.fail(ctx, MethodVideos, err)
	}
	return reply(videosMsg{Videos: videos})
}

func (s *Server) video(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	v, err := s.backend.Video(ctx, req.VideoID)
	if err != nil {
		return nil, s.fail(ctx, MethodVideo, err)
	}
	return reply(videoMsg{Video: v})
}

func (s *Server) momentsForVideo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	ms, err := s.backend.MomentsForVideo(ctx, req.VideoID)
	if err != nil {
		return nil, s.fail(ctx, MethodMomentsForVideo, err)
	}
	return reply(momentsMsg{Moments: ms})
}

func (s *Server) search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req searchMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	videos, err := s.backend.Search(ctx, req.Query)
	if err != nil {
		return nil, s.fail(ctx, MethodSearch, err)
	}
	return reply(videosMsg{Videos: videos})
}

func (s *Server) totalMoments(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	n, err := s.backend.TotalMoments(ctx)
	if err != nil {
		return nil, s.fail(ctx, MethodTotalMoments, err)
	}
	return reply(countMsg{Count: n})
}

func (s *Server) updateMoment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req updateMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	m, err := s.backend.UpdateMoment(ctx, req.MomentID, models.MomentPatch{
		Title:   req.Title,
		Notes:   req.Notes,
		Tags:    req.Tags,
		SetTags: req.SetTags,
	})
	if err != nil {
		return nil, s.fail(ctx, MethodUpdateMoment, err)
	}
	return reply(momentMsg{Moment: m})
}

func (s *Server) deleteMoment(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req deleteMomentMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if err := s.backend.DeleteMoment(ctx, req.VideoID, req.MomentID); err != nil {
		return nil, s.fail(ctx, MethodDeleteMoment, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) deleteAllMomentsForVideo(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req idMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if err := s.backend.DeleteAllMomentsForVideo(ctx, req.VideoID); err != nil {
		return nil, s.fail(ctx, MethodDeleteAllMomentsForVideo, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) deleteVideo(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req idMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if err := s.backend.DeleteVideo(ctx, req.VideoID); err != nil {
		return nil, s.fail(ctx, MethodDeleteVideo, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) clearAll(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.backend.ClearAll(ctx); err != nil {
		return nil, s.fail(ctx, MethodClearAll, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) merge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req videosMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	n, err := s.backend.Merge(ctx, req.Videos)
	if err != nil {
		return nil, s.fail(ctx, MethodMerge, err)
	}
	return reply(countMsg{Count: n})
}

func (s *Server) replace(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req videosMsg
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if err := s.backend.Replace(ctx, req.Videos); err != nil {
		return nil, s.fail(ctx, MethodReplace, err)
	}
	return &emptypb.Empty{}, nil
}

// subscribe forwards change notifications until the client goes away.
// A slow client only ever sees the latest list.
func (s *Server) subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	updates := make(chan []models.Video, 1)

	unsubscribe, err := s.backend.Subscribe(ctx, func(videos []models.Video) {
		for {
			select {
			case updates <- videos:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		return s.fail(ctx, MethodSubscribe, err)
	}
	defer unsubscribe()

	if err := stream.SendHeader(metadata.Pairs(subscribedHeader, "1")); err != nil {
		return err
	}

	s.logger.Debug(ctx, "subscriber attached", "client_id", ClientIDFromContext(ctx))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug(ctx, "subscriber detached", "client_id", ClientIDFromContext(ctx))
			return nil
		case <-s.stopping:
			return status.Error(codes.Unavailable, "server is shutting down")
		case videos := <-updates:
			msg, err := toStruct(videosMsg{Videos: videos})
			if err != nil {
				return toStatus(err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func reply(v any) (*structpb.Struct, error) {
	s, err := toStruct(v)
	if err != nil {
		return nil, toStatus(err)
	}
	return s, nil
}

func (s *Server) fail(ctx context.Context, method string, err error) error {
	st := toStatus(err)
	s.logger.Warn(ctx, "request failed", "method", method, "error", err)
	return st
}

func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "rpc", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	return resp, err
}
