package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kfcempoyee/gofiledrop/internal/blob"
	"github.com/kfcempoyee/gofiledrop/internal/registry/regpb"
)

type FileHandler struct {
	TmpDir        string
	MaxUploadSize int64
	GRpcClient    regpb.RegServiceClient
	// блобы gateway читает напрямую, реестр отдаёт только метаданные
	Blobs  blob.Store
	Logger *slog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func handleError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(
		ErrorResponse{Error: msg},
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// ответы
type uploadResponse struct {
	AccessCode string    `json:"access_code"`
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type fileInfo struct {
	ID       string    `json:"id"`
	FileName string    `json:"file_name"`
	MimeType string    `json:"mime_type"`
	Size     int64     `json:"size"`
	AddedAt  time.Time `json:"added_at"`
}

type infoResponse struct {
	File fileInfo `json:"file"`
	Kind string   `json:"kind"`
}

type linkResponse struct {
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

const (
	sniffLen = 512
	// запас на заголовки multipart сверх размера самого файла
	multipartOverhead = 1 << 20
)

// исполняемые файлы не принимаем
var blockedTypes = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
}

// переводит ошибку rpc в http-ответ
func (h *FileHandler) handleRPCError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		h.Logger.Error("failed to call rpc.", "details", err)
		handleError(w, "Server Error.", http.StatusInternalServerError)
		return
	}

	switch st.Code() {
	case codes.NotFound:
		handleError(w, "Invalid code.", http.StatusNotFound)
	case codes.FailedPrecondition:
		handleError(w, "Access expired.", http.StatusBadRequest)
	case codes.InvalidArgument:
		handleError(w, st.Message(), http.StatusBadRequest)
	case codes.ResourceExhausted:
		handleError(w, "Server is busy, try again later.", http.StatusServiceUnavailable)
	default:
		h.Logger.Error("rpc error",
			"code", st.Code(),
			"msg", st.Message(),
		)
		handleError(w, "Service Internal error.", http.StatusInternalServerError)
	}
}

func tokenFromQuery(r *http.Request) string {
	q := r.URL.Query()
	if code := q.Get("code"); code != "" {
		return code
	}
	return q.Get("link")
}

// проверяет токен в реестре, ничего не расходуя
func (h *FileHandler) resolve(w http.ResponseWriter, r *http.Request) (string, *regpb.ResolveTokenResponse) {
	token := tokenFromQuery(r)
	if token == "" {
		handleError(w, "Missing access code or link.", http.StatusBadRequest)
		return "", nil
	}

	resp, err := h.GRpcClient.ResolveToken(r.Context(), &regpb.ResolveTokenRequest{Token: token})
	if err != nil {
		h.handleRPCError(w, err)
		return "", nil
	}

	return token, resp
}

// GetFile отдаёт файл по коду или ссылке. код расходуется до отправки первого байта:
// из двух одновременных скачиваний по одному коду файл получит только одно.
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	token, resp := h.resolve(w, r)
	if resp == nil {
		return
	}

	rc, err := h.Blobs.Open(r.Context(), resp.File.ID)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			h.Logger.Error("blob missing for valid token", "file_id", resp.File.ID)
		} else {
			h.Logger.Error("failed to open blob", "file_id", resp.File.ID, "error", err)
		}
		handleError(w, "File missing.", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	_, err = h.GRpcClient.ConsumeToken(r.Context(), &regpb.ConsumeTokenRequest{Token: token, Kind: resp.Kind})
	if err != nil {
		h.handleRPCError(w, err)
		return
	}

	contentType := resp.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": resp.File.Filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(resp.File.SizeBytes, 10))

	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Warn("download interrupted", "file_id", resp.File.ID, "error", err)
	}
}

func (h *FileHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	_, resp := h.resolve(w, r)
	if resp == nil {
		return
	}

	writeJSON(w, infoResponse{
		Kind: resp.Kind,
		File: fileInfo{
			ID:       resp.File.ID,
			FileName: resp.File.Filename,
			MimeType: resp.File.ContentType,
			Size:     resp.File.SizeBytes,
			AddedAt:  time.UnixMilli(resp.File.CreatedAtMs).UTC(),
		},
	})
}

func (h *FileHandler) MintLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		handleError(w, "Invalid file.", http.StatusNotFound)
		return
	}

	resp, err := h.GRpcClient.MintLink(r.Context(), &regpb.MintLinkRequest{FileID: id})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			handleError(w, "Invalid file.", http.StatusNotFound)
			return
		}
		h.handleRPCError(w, err)
		return
	}

	writeJSON(w, linkResponse{
		Link:      resp.Link,
		ExpiresAt: time.UnixMilli(resp.ExpiresAtMs).UTC(),
	})
}

func (h *FileHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// UploadFile принимает первый файл из полей file или files, складывает его
// во временную директорию и регистрирует в реестре.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadSize+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		h.Logger.Debug("invalid multipart form", "details", err)
		handleError(w, "Invalid Multipart Form.", http.StatusBadRequest)
		return
	}

	for {
		part, err := reader.NextPart()

		// когда закончился поток, выходим из цикла.
		if err == io.EOF {
			break
		}

		if err != nil {
			h.uploadReadError(w, err)
			return
		}

		// файл должен лежать в поле file (или files) формы
		if (part.FormName() != "file" && part.FormName() != "files") || part.FileName() == "" {
			continue
		}

		h.storeUpload(w, r, part.FileName(), part)
		return
	}

	handleError(w, "No file provided.", http.StatusBadRequest)
}

func (h *FileHandler) storeUpload(w http.ResponseWriter, r *http.Request, filename string, part io.Reader) {
	// для определения типа файла читаем первые 512 байт файла (сигнатуру)
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(part, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		h.uploadReadError(w, err)
		return
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	for _, blocked := range blockedTypes {
		if mtype.Is(blocked) {
			handleError(w, "This type of files is not available.", http.StatusUnsupportedMediaType)
			return
		}
	}

	tmpName := uuid.NewString()
	tmpPath := filepath.Join(h.TmpDir, tmpName)
	tmp, err := os.Create(tmpPath)
	if err != nil {
		h.Logger.Error("failed to create temp file", "error", err)
		handleError(w, "Failed to upload a file.", http.StatusInternalServerError)
		return
	}
	// реестр забирает файл сам, это удаление на случай ошибок
	defer os.Remove(tmpPath)

	// склеиваем буфер с первыми байтами и следующую часть
	full := io.MultiReader(bytes.NewReader(head), part)

	size, err := io.Copy(tmp, io.LimitReader(full, h.MaxUploadSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		h.uploadReadError(w, err)
		return
	}
	if size > h.MaxUploadSize {
		handleError(w, "File too large.", http.StatusRequestEntityTooLarge)
		return
	}

	resp, err := h.GRpcClient.RegisterFile(r.Context(), &regpb.RegisterFileRequest{
		TmpName:     tmpName,
		Filename:    filename,
		SizeBytes:   size,
		ContentType: mtype.String(),
	})
	if err != nil {
		h.handleRPCError(w, err)
		return
	}

	writeJSON(w, uploadResponse{
		AccessCode: resp.AccessCode,
		FileName:   resp.Filename,
		Size:       resp.SizeBytes,
		ExpiresAt:  time.UnixMilli(resp.ExpiresAtMs).UTC(),
	})
}

func (h *FileHandler) uploadReadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		handleError(w, "File too large.", http.StatusRequestEntityTooLarge)
		return
	}

	h.Logger.Error("failed to read data", "details", err)
	handleError(w, "Failed to upload a file.", http.StatusInternalServerError)
}
