package regpb

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// на проводе каждое сообщение - google.protobuf.Struct.
// числа в Struct хранятся как double, поэтому размеры и время (unix ms) точны до 2^53.

type message interface {
	toStruct() (*structpb.Struct, error)
	fromStruct(*structpb.Struct) error
}

type RegisterFileRequest struct {
	TmpName     string
	Filename    string
	SizeBytes   int64
	ContentType string
}

type RegisterFileResponse struct {
	FileID      string
	AccessCode  string
	Filename    string
	SizeBytes   int64
	ExpiresAtMs int64
}

type ResolveTokenRequest struct {
	Token string
}

// FileInfo - метаданные файла, как их видит gateway
type FileInfo struct {
	ID          string
	Filename    string
	ContentType string
	SizeBytes   int64
	CreatedAtMs int64
}

type ResolveTokenResponse struct {
	File FileInfo
	// "code" или "link"
	Kind string
}

type ConsumeTokenRequest struct {
	Token string
	Kind  string
}

type ConsumeTokenResponse struct{}

type MintLinkRequest struct {
	FileID string
}

type MintLinkResponse struct {
	Link        string
	ExpiresAtMs int64
}

func (m *RegisterFileRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"tmp_name":     m.TmpName,
		"filename":     m.Filename,
		"size_bytes":   m.SizeBytes,
		"content_type": m.ContentType,
	})
}

func (m *RegisterFileRequest) fromStruct(s *structpb.Struct) error {
	f := fields{s}
	m.TmpName = f.str("tmp_name")
	m.Filename = f.str("filename")
	m.ContentType = f.str("content_type")
	return f.int("size_bytes", &m.SizeBytes)
}

func (m *RegisterFileResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"file_id":       m.FileID,
		"access_code":   m.AccessCode,
		"filename":      m.Filename,
		"size_bytes":    m.SizeBytes,
		"expires_at_ms": m.ExpiresAtMs,
	})
}

func (m *RegisterFileResponse) fromStruct(s *structpb.Struct) error {
	f := fields{s}
	m.FileID = f.str("file_id")
	m.AccessCode = f.str("access_code")
	m.Filename = f.str("filename")
	if err := f.int("size_bytes", &m.SizeBytes); err != nil {
		return err
	}
	return f.int("expires_at_ms", &m.ExpiresAtMs)
}

func (m *ResolveTokenRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"token": m.Token})
}

func (m *ResolveTokenRequest) fromStruct(s *structpb.Struct) error {
	m.Token = fields{s}.str("token")
	return nil
}

func (m *ResolveTokenResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind": m.Kind,
		"file": map[string]any{
			"id":            m.File.ID,
			"filename":      m.File.Filename,
			"content_type":  m.File.ContentType,
			"size_bytes":    m.File.SizeBytes,
			"created_at_ms": m.File.CreatedAtMs,
		},
	})
}

func (m *ResolveTokenResponse) fromStruct(s *structpb.Struct) error {
	f := fields{s}
	m.Kind = f.str("kind")

	file := fields{f.get("file").GetStructValue()}
	m.File.ID = file.str("id")
	m.File.Filename = file.str("filename")
	m.File.ContentType = file.str("content_type")
	if err := file.int("size_bytes", &m.File.SizeBytes); err != nil {
		return err
	}
	return file.int("created_at_ms", &m.File.CreatedAtMs)
}

func (m *ConsumeTokenRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"token": m.Token, "kind": m.Kind})
}

func (m *ConsumeTokenRequest) fromStruct(s *structpb.Struct) error {
	f := fields{s}
	m.Token = f.str("token")
	m.Kind = f.str("kind")
	return nil
}

func (m *ConsumeTokenResponse) toStruct() (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

func (m *ConsumeTokenResponse) fromStruct(*structpb.Struct) error {
	return nil
}

func (m *MintLinkRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"file_id": m.FileID})
}

func (m *MintLinkRequest) fromStruct(s *structpb.Struct) error {
	m.FileID = fields{s}.str("file_id")
	return nil
}

func (m *MintLinkResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"link":          m.Link,
		"expires_at_ms": m.ExpiresAtMs,
	})
}

func (m *MintLinkResponse) fromStruct(s *structpb.Struct) error {
	f := fields{s}
	m.Link = f.str("link")
	return f.int("expires_at_ms", &m.ExpiresAtMs)
}

// fields читает поля Struct. отсутствующее поле - нулевое значение, как в proto3
type fields struct {
	s *structpb.Struct
}

func (f fields) get(key string) *structpb.Value {
	return f.s.GetFields()[key]
}

func (f fields) str(key string) string {
	return f.get(key).GetStringValue()
}

func (f fields) int(key string, dst *int64) error {
	v := f.get(key)
	if v == nil {
		*dst = 0
		return nil
	}
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return fmt.Errorf("field %q: expected number", key)
	}

	n := v.GetNumberValue()
	if n != float64(int64(n)) {
		return fmt.Errorf("field %q: %v is not an integer", key, n)
	}
	*dst = int64(n)
	return nil
}
