package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kfcempoyee/gofiledrop/internal/registry/domain"
	"github.com/kfcempoyee/gofiledrop/internal/registry/regpb"
	"github.com/kfcempoyee/gofiledrop/internal/registry/service"
)

type fakeService struct {
	err      error
	consumed []string
	params   service.RegisterParams
}

var created = time.UnixMilli(1_700_000_000_000)

func (f *fakeService) Register(_ context.Context, p service.RegisterParams) (*domain.File, *domain.Token, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.params = p
	file := &domain.File{ID: "file-1", Name: p.Filename, ContentType: p.ContentType, Size: p.Size, CreatedAt: created}
	code := &domain.Token{Code: "123456", Kind: domain.KindCode, FileID: file.ID, CreatedAt: created, TTL: 10 * time.Minute}
	return file, code, nil
}

func (f *fakeService) Validate(_ context.Context, token string) (*domain.File, domain.TokenKind, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return &domain.File{ID: "file-1", Name: "a.txt", ContentType: "text/plain", Size: 3, CreatedAt: created}, domain.KindLink, nil
}

func (f *fakeService) Consume(_ context.Context, token string, kind domain.TokenKind) error {
	if f.err != nil {
		return f.err
	}
	f.consumed = append(f.consumed, kind.String()+":"+token)
	return nil
}

func (f *fakeService) MintLink(_ context.Context, fileID string) (*domain.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Token{Code: "link-uuid", Kind: domain.KindLink, FileID: fileID, CreatedAt: created, TTL: time.Hour}, nil
}

func TestGrpcHandler_RegisterFile(t *testing.T) {
	svc := &fakeService{}
	h := NewGRPCHandler(svc)

	resp, err := h.RegisterFile(context.Background(), &regpb.RegisterFileRequest{
		TmpName: "tmp-1", Filename: "a.txt", SizeBytes: 3, ContentType: "text/plain",
	})
	require.NoError(t, err)
	require.Equal(t, "123456", resp.AccessCode)
	require.Equal(t, created.Add(10*time.Minute).UnixMilli(), resp.ExpiresAtMs)
	require.Equal(t, service.RegisterParams{TmpName: "tmp-1", Filename: "a.txt", Size: 3, ContentType: "text/plain"}, svc.params)
}

func TestGrpcHandler_ResolveToken(t *testing.T) {
	h := NewGRPCHandler(&fakeService{})

	resp, err := h.ResolveToken(context.Background(), &regpb.ResolveTokenRequest{Token: "x"})
	require.NoError(t, err)
	require.Equal(t, "link", resp.Kind)
	require.Equal(t, "a.txt", resp.File.Filename)
	require.Equal(t, created.UnixMilli(), resp.File.CreatedAtMs)
}

func TestGrpcHandler_ConsumeToken(t *testing.T) {
	svc := &fakeService{}
	h := NewGRPCHandler(svc)

	_, err := h.ConsumeToken(context.Background(), &regpb.ConsumeTokenRequest{Token: "123456", Kind: "code"})
	require.NoError(t, err)
	require.Equal(t, []string{"code:123456"}, svc.consumed)

	_, err = h.ConsumeToken(context.Background(), &regpb.ConsumeTokenRequest{Token: "123456", Kind: "ticket"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGrpcHandler_MintLink(t *testing.T) {
	h := NewGRPCHandler(&fakeService{})

	resp, err := h.MintLink(context.Background(), &regpb.MintLinkRequest{FileID: "file-1"})
	require.NoError(t, err)
	require.Equal(t, "link-uuid", resp.Link)
	require.Equal(t, created.Add(time.Hour).UnixMilli(), resp.ExpiresAtMs)
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{domain.ErrNotFound, codes.NotFound},
		{domain.ErrExpired, codes.FailedPrecondition},
		{domain.ErrInvalidToken, codes.InvalidArgument},
		{domain.ErrTooLarge, codes.InvalidArgument},
		{domain.ErrBadUpload, codes.InvalidArgument},
		{domain.ErrCodeSpaceExhausted, codes.ResourceExhausted},
		{fmt.Errorf("%w: link", domain.ErrCodeSpaceExhausted), codes.ResourceExhausted},
		{domain.ErrFileMissing, codes.Internal},
		{domain.ErrInRepo, codes.Internal},
		{errors.New("boom"), codes.Internal},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := NewGRPCHandler(&fakeService{err: tc.err})
			_, err := h.ResolveToken(context.Background(), &regpb.ResolveTokenRequest{Token: "x"})
			require.Equal(t, tc.want, status.Code(err))
		})
	}
}
