package rpc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/moments/internal/auth"
	"github.com/dmitrijs2005/moments/internal/common"
	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/moments"
)

// Client talks to a momentsd server. It implements moments.Service and
// export.Target.
type Client struct {
	conn     *grpc.ClientConn
	clientID string
	secret   []byte
	ttl      time.Duration

	mu          sync.Mutex
	accessToken string
}

var (
	_ moments.Service = (*Client)(nil)
	_ Backend         = (*Client)(nil)
)

// ClientOptions configure how the client signs its tokens.
type ClientOptions struct {
	ClientID  string
	SecretKey string
	TokenTTL  time.Duration
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// NewClient connects to target. Extra dial options come after the
// defaults, so tests can swap the dialer.
func NewClient(target string, o ClientOptions, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{clientID: o.ClientID, secret: []byte(o.SecretKey), ttl: o.TokenTTL}
	if c.clientID == "" {
		c.clientID = "cli"
	}
	if c.ttl <= 0 {
		c.ttl = time.Hour
	}

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithStreamInterceptor(c.accessTokenStreamInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(target, dial...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// token returns the cached access token, minting one when there is none
// or refresh is set.
func (c *Client) token(refresh bool) (string, error) {
	if len(c.secret) == 0 {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && !refresh {
		return c.accessToken, nil
	}
	t, err := auth.GenerateToken(c.clientID, c.secret, c.ttl)
	if err != nil {
		return "", err
	}
	c.accessToken = t
	return t, nil
}

func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token, err := c.token(false)
	if err != nil {
		return err
	}
	if token == "" {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	err = invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
	if !errors.Is(mapError(err), common.ErrTokenExpired) {
		return err
	}

	// token expired, mint a fresh one and retry once
	token, err = c.token(true)
	if err != nil {
		return err
	}
	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

func (c *Client) accessTokenStreamInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	// streams are long lived, so always start one with a fresh token
	token, err := c.token(true)
	if err != nil {
		return nil, err
	}
	if token != "" {
		ctx = withAccessToken(ctx, token)
	}
	return streamer(ctx, desc, cc, method, opts...)
}

func (c *Client) call(ctx context.Context, method string, in any, out any) error {
	var req interface{} = &emptypb.Empty{}
	if in != nil {
		s, err := toStruct(in)
		if err != nil {
			return err
		}
		req = s
	}

	if out == nil {
		return mapError(c.conn.Invoke(ctx, FullMethod(method), req, &emptypb.Empty{}))
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, FullMethod(method), req, resp); err != nil {
		return mapError(err)
	}
	return fromStruct(resp, out)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, nil, nil)
}

func (c *Client) Capture(ctx context.Context, req moments.CaptureRequest) (models.Moment, error) {
	var out momentMsg
	err := c.call(ctx, MethodCapture, captureMsg{
		VideoID:      req.VideoID,
		Timestamp:    req.Timestamp,
		Duration:     req.Duration,
		Title:        req.Title,
		ThumbnailURL: req.ThumbnailURL,
		URL:          req.URL,
		Notes:        req.Notes,
		Tags:         req.Tags,
	}, &out)
	return out.Moment, err
}

func (c *Client) OpenVideo(ctx context.Context, rawURL string) (models.Video, error) {
	var out videoMsg
	err := c.call(ctx, MethodOpenVideo, urlMsg{URL: rawURL}, &out)
	return out.Video, err
}

func (c *Client) Videos(ctx context.Context) ([]models.Video, error) {
	var out videosMsg
	if err := c.call(ctx, MethodVideos, nil, &out); err != nil {
		return nil, err
	}
	if out.Videos == nil {
		out.Videos = []models.Video{}
	}
	return out.Videos, nil
}

func (c *Client) Video(ctx context.Context, videoID string) (models.Video, error) {
	var out videoMsg
	err := c.call(ctx, MethodVideo, idMsg{VideoID: videoID}, &out)
	return out.Video, err
}

func (c *Client) MomentsForVideo(ctx context.Context, videoID string) ([]models.Moment, error) {
	var out momentsMsg
	if err := c.call(ctx, MethodMomentsForVideo, idMsg{VideoID: videoID}, &out); err != nil {
		return nil, err
	}
	if out.Moments == nil {
		out.Moments = []models.Moment{}
	}
	return out.Moments, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]models.Video, error) {
	var out videosMsg
	if err := c.call(ctx, MethodSearch, searchMsg{Query: query}, &out); err != nil {
		return nil, err
	}
	if out.Videos == nil {
		out.Videos = []models.Video{}
	}
	return out.Videos, nil
}

func (c *Client) TotalMoments(ctx context.Context) (int, error) {
	var out countMsg
	err := c.call(ctx, MethodTotalMoments, nil, &out)
	return out.Count, err
}

func (c *Client) UpdateMoment(ctx context.Context, momentID string, patch models.MomentPatch) (models.Moment, error) {
	var out momentMsg
	err := c.call(ctx, MethodUpdateMoment, updateMsg{
		MomentID: momentID,
		Title:    patch.Title,
		Notes:    patch.Notes,
		Tags:     patch.Tags,
		SetTags:  patch.SetTags,
	}, &out)
	return out.Moment, err
}

func (c *Client) DeleteMoment(ctx context.Context, videoID, momentID string) error {
	return c.call(ctx, MethodDeleteMoment, deleteMomentMsg{VideoID: videoID, MomentID: momentID}, nil)
}

func (c *Client) DeleteAllMomentsForVideo(ctx context.Context, videoID string) error {
	return c.call(ctx, MethodDeleteAllMomentsForVideo, idMsg{VideoID: videoID}, nil)
}

func (c *Client) DeleteVideo(ctx context.Context, videoID string) error {
	return c.call(ctx, MethodDeleteVideo, idMsg{VideoID: videoID}, nil)
}

func (c *Client) ClearAll(ctx context.Context) error {
	return c.call(ctx, MethodClearAll, nil, nil)
}

func (c *Client) Merge(ctx context.Context, videos []models.Video) (int, error) {
	var out countMsg
	err := c.call(ctx, MethodMerge, videosMsg{Videos: videos}, &out)
	return out.Count, err
}

func (c *Client) Replace(ctx context.Context, videos []models.Video) error {
	return c.call(ctx, MethodReplace, videosMsg{Videos: videos}, nil)
}

// Subscribe opens the server stream and calls fn for every update on a
// separate goroutine. The stream ends when ctx is done or the returned
// function is called.
func (c *Client) Subscribe(ctx context.Context, fn moments.Listener) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], FullMethod(MethodSubscribe))
	if err != nil {
		cancel()
		return nil, mapError(err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		cancel()
		return nil, mapError(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, mapError(err)
	}

	// the server sends headers once the subscription is live; a stream
	// that ends without them carries the error in its status
	md, err := stream.Header()
	if err != nil {
		cancel()
		return nil, mapError(err)
	}
	if len(md.Get(subscribedHeader)) == 0 {
		err := stream.RecvMsg(&structpb.Struct{})
		cancel()
		if err == nil || errors.Is(err, io.EOF) {
			return nil, ErrUnavailable
		}
		return nil, mapError(err)
	}

	go func() {
		defer cancel()
		for {
			msg := &structpb.Struct{}
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			var out videosMsg
			if err := fromStruct(msg, &out); err != nil {
				continue
			}
			if out.Videos == nil {
				out.Videos = []models.Video{}
			}
			fn(out.Videos)
		}
	}()

	return cancel, nil
}
