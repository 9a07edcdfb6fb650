package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kfcempoyee/gofiledrop/internal/registry/domain"
	"github.com/kfcempoyee/gofiledrop/internal/registry/regpb"
	"github.com/kfcempoyee/gofiledrop/internal/registry/service"
)

// интерфейс сервиса
type FileServiceInterface interface {
	Register(ctx context.Context, p service.RegisterParams) (*domain.File, *domain.Token, error)
	Validate(ctx context.Context, token string) (*domain.File, domain.TokenKind, error)
	Consume(ctx context.Context, token string, kind domain.TokenKind) error
	MintLink(ctx context.Context, fileID string) (*domain.Token, error)
}

// сам хендлер должен принять сервис и структуру для совместимости
type GrpcHandler struct {
	service FileServiceInterface
	regpb.UnimplementedRegServiceServer
}

// при создании хендлера укажем сервис
func NewGRPCHandler(s FileServiceInterface) *GrpcHandler {
	return &GrpcHandler{
		service: s,
	}
}

// сохранить файл из временного пути в хранилище и выдать код
func (h *GrpcHandler) RegisterFile(ctx context.Context, req *regpb.RegisterFileRequest) (*regpb.RegisterFileResponse, error) {
	file, code, err := h.service.Register(ctx, service.RegisterParams{
		TmpName:     req.TmpName,
		Filename:    req.Filename,
		Size:        req.SizeBytes,
		ContentType: req.ContentType,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &regpb.RegisterFileResponse{
		FileID:      file.ID,
		AccessCode:  code.Code,
		Filename:    file.Name,
		SizeBytes:   file.Size,
		ExpiresAtMs: code.ExpiresAt().UnixMilli(),
	}, nil
}

// проверить код или ссылку и отдать метаданные файла, токен не расходуется
func (h *GrpcHandler) ResolveToken(ctx context.Context, req *regpb.ResolveTokenRequest) (*regpb.ResolveTokenResponse, error) {
	file, kind, err := h.service.Validate(ctx, req.Token)
	if err != nil {
		return nil, toStatus(err)
	}

	return &regpb.ResolveTokenResponse{
		Kind: kind.String(),
		File: regpb.FileInfo{
			ID:          file.ID,
			Filename:    file.Name,
			ContentType: file.ContentType,
			SizeBytes:   file.Size,
			CreatedAtMs: file.CreatedAt.UnixMilli(),
		},
	}, nil
}

// израсходовать код после того, как gateway решил отдать файл
func (h *GrpcHandler) ConsumeToken(ctx context.Context, req *regpb.ConsumeTokenRequest) (*regpb.ConsumeTokenResponse, error) {
	kind, ok := parseKind(req.Kind)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "Unknown token kind.")
	}

	if err := h.service.Consume(ctx, req.Token, kind); err != nil {
		return nil, toStatus(err)
	}
	return &regpb.ConsumeTokenResponse{}, nil
}

// выпустить многоразовую ссылку на файл
func (h *GrpcHandler) MintLink(ctx context.Context, req *regpb.MintLinkRequest) (*regpb.MintLinkResponse, error) {
	link, err := h.service.MintLink(ctx, req.FileID)
	if err != nil {
		return nil, toStatus(err)
	}

	return &regpb.MintLinkResponse{
		Link:        link.Code,
		ExpiresAtMs: link.ExpiresAt().UnixMilli(),
	}, nil
}

func parseKind(s string) (domain.TokenKind, bool) {
	switch s {
	case domain.KindCode.String():
		return domain.KindCode, true
	case domain.KindLink.String():
		return domain.KindLink, true
	default:
		return 0, false
	}
}

// ошибки домена в статусы grpc
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "File not found.")
	case errors.Is(err, domain.ErrExpired):
		return status.Error(codes.FailedPrecondition, "Access expired.")
	case errors.Is(err, domain.ErrInvalidToken):
		return status.Error(codes.InvalidArgument, "Invalid token.")
	case errors.Is(err, domain.ErrTooLarge):
		return status.Error(codes.InvalidArgument, "File too large.")
	case errors.Is(err, domain.ErrBadUpload):
		return status.Error(codes.InvalidArgument, "Invalid upload.")
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		return status.Error(codes.ResourceExhausted, "No free access code.")
	case errors.Is(err, domain.ErrFileMissing):
		return status.Error(codes.Internal, "File missing.")
	default:
		return status.Error(codes.Internal, "Internal Error.")
	}
}
