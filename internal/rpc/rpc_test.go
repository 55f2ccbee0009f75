package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/moments/internal/auth"
	"github.com/dmitrijs2005/moments/internal/common"
	"github.com/dmitrijs2005/moments/internal/history"
	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/moments"
	"github.com/dmitrijs2005/moments/internal/storage"
)

const testSecret = "test-secret"

type fixture struct {
	facade *moments.Facade
	lis    *bufconn.Listener
}

func startServer(t *testing.T, secret string) *fixture {
	t.Helper()
	h := history.NewManager(storage.NewMemoryStore(), nil)
	h.Load(context.Background())
	b := moments.NewBroker(nil)
	f := moments.New(h, b, nil)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer("bufnet", nil, f, secret).NewGRPCServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		b.Close()
	})
	return &fixture{facade: f, lis: lis}
}

func (fx *fixture) dial(t *testing.T, secret string) *Client {
	t.Helper()
	c, err := NewClient("passthrough:///bufnet", ClientOptions{SecretKey: secret},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return fx.lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_RoundTrip(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, testSecret)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	m, err := c.Capture(ctx, moments.CaptureRequest{VideoID: "abc123", Timestamp: 42, Title: "Test", Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "Moment 1", m.Title)
	assert.Equal(t, 42.0, m.Timestamp)
	assert.Equal(t, []string{"x"}, m.Tags)

	local, err := fx.facade.Videos(ctx)
	require.NoError(t, err)
	remote, err := c.Videos(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(local, remote); diff != "" {
		t.Errorf("videos mismatch (-local +remote):\n%s", diff)
	}

	v, err := c.Video(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Test", v.Title)

	ms, err := c.MomentsForVideo(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, ms, 1)

	ms, err = c.MomentsForVideo(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, ms)
	assert.Empty(t, ms)

	updated, err := moments.UpdateNotes(ctx, c, m.ID, "remote note")
	require.NoError(t, err)
	assert.Equal(t, "remote note", updated.Notes)
	assert.Equal(t, []string{"x"}, updated.Tags, "tags untouched by a notes patch")

	updated, err = moments.UpdateTags(ctx, c, m.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, updated.Tags)

	found, err := c.Search(ctx, "remote")
	require.NoError(t, err)
	require.Len(t, found, 1)

	n, err := c.TotalMoments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.DeleteMoment(ctx, "abc123", m.ID))
	_, err = c.Video(ctx, "abc123")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestClient_OpenVideoDeleteAndClear(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, testSecret)
	ctx := context.Background()

	v, err := c.OpenVideo(ctx, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", v.ID)

	_, err = c.Capture(ctx, moments.CaptureRequest{VideoID: "dQw4w9WgXcQ", Timestamp: 1})
	require.NoError(t, err)
	_, err = c.Capture(ctx, moments.CaptureRequest{VideoID: "other", Timestamp: 1, Title: "O"})
	require.NoError(t, err)

	require.NoError(t, c.DeleteVideo(ctx, "dQw4w9WgXcQ"))
	require.NoError(t, c.DeleteAllMomentsForVideo(ctx, "other"))
	require.ErrorIs(t, c.DeleteVideo(ctx, "other"), common.ErrorNotFound)

	_, err = c.Capture(ctx, moments.CaptureRequest{VideoID: "x", Timestamp: 1, Title: "X"})
	require.NoError(t, err)
	require.NoError(t, c.ClearAll(ctx))

	videos, err := c.Videos(ctx)
	require.NoError(t, err)
	assert.NotNil(t, videos)
	assert.Empty(t, videos)
}

func TestClient_MergeReplace(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, testSecret)
	ctx := context.Background()

	videos := []models.Video{{
		ID:      "v",
		Title:   "V",
		AddedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Moments: []models.Moment{{ID: "v_1", Timestamp: 5, Title: "Moment 1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}}

	n, err := c.Merge(ctx, videos)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Replace(ctx, nil))
	total, err := c.TotalMoments(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestClient_Errors(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, testSecret)
	ctx := context.Background()

	_, err := c.Capture(ctx, moments.CaptureRequest{Timestamp: 1})
	require.ErrorIs(t, err, common.ErrorValidation)

	_, err = c.Capture(ctx, moments.CaptureRequest{VideoID: "nope", Timestamp: 1})
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = c.UpdateMoment(ctx, "nope", models.MomentPatch{})
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestAuth_WrongSecret(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, "wrong")
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx), "ping is public")

	_, err := c.Videos(ctx)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = c.Subscribe(ctx, func([]models.Video) {})
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuth_MissingToken(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, "")

	_, err := c.TotalMoments(context.Background())
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuth_ExpiredTokenIsRefreshed(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, testSecret)

	expired, err := auth.GenerateToken("cli", []byte(testSecret), -time.Second)
	require.NoError(t, err)
	c.accessToken = expired

	_, err = c.Videos(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, expired, c.accessToken)
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	fx := startServer(t, "")
	c := fx.dial(t, "")

	_, err := c.Videos(context.Background())
	require.NoError(t, err)
}

func TestSubscribe_StreamsUpdates(t *testing.T) {
	fx := startServer(t, testSecret)
	c := fx.dial(t, testSecret)
	ctx := context.Background()

	updates := make(chan []models.Video, 8)
	unsubscribe, err := c.Subscribe(ctx, func(v []models.Video) { updates <- v })
	require.NoError(t, err)

	_, err = fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: "v", Timestamp: 1, Title: "V"})
	require.NoError(t, err)

	select {
	case got := <-updates:
		require.Len(t, got, 1)
		assert.Equal(t, "v", got[0].ID)
		assert.Len(t, got[0].Moments, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	unsubscribe()
	require.Eventually(t, func() bool {
		if _, err := fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: "v", Timestamp: 2}); err != nil {
			return false
		}
		select {
		case <-updates:
			return false
		case <-time.After(20 * time.Millisecond):
			return true
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestToStatusAndBack(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		want error
	}{
		{common.ErrorNotFound, codes.NotFound, common.ErrorNotFound},
		{common.ErrorValidation, codes.InvalidArgument, common.ErrorValidation},
		{common.ErrTokenExpired, codes.Unauthenticated, common.ErrTokenExpired},
		{common.ErrInvalidToken, codes.Unauthenticated, common.ErrorUnauthorized},
		{context.Canceled, codes.Canceled, context.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		st := toStatus(tt.err)
		assert.Equal(t, tt.code, status.Code(st), tt.err.Error())
		assert.ErrorIs(t, mapError(st), tt.want)
	}

	assert.Equal(t, codes.Internal, status.Code(toStatus(assert.AnError)))
	assert.ErrorIs(t, mapError(status.Error(codes.Unavailable, "down")), ErrUnavailable)
	assert.NoError(t, toStatus(nil))
	assert.NoError(t, mapError(nil))
}

func TestCodec_PatchPointers(t *testing.T) {
	notes := ""
	s, err := toStruct(updateMsg{MomentID: "m", Notes: &notes})
	require.NoError(t, err)

	var got updateMsg
	require.NoError(t, fromStruct(s, &got))
	assert.Equal(t, "m", got.MomentID)
	assert.Nil(t, got.Title)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "", *got.Notes)
	assert.False(t, got.SetTags)
}

func TestServe_ShutdownEndsSubscriptions(t *testing.T) {
	h := history.NewManager(storage.NewMemoryStore(), nil)
	b := moments.NewBroker(nil)
	t.Cleanup(b.Close)
	f := moments.New(h, b, nil)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- NewServer("bufnet", nil, f, testSecret).Serve(ctx, lis) }()

	fx := &fixture{facade: f, lis: lis}
	c := fx.dial(t, testSecret)

	unsubscribe, err := c.Subscribe(context.Background(), func([]models.Video) {})
	require.NoError(t, err)
	defer unsubscribe()

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return while a subscription was open")
	}
}
