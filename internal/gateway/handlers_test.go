package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/kfcempoyee/gofiledrop/internal/blob"
	"github.com/kfcempoyee/gofiledrop/internal/registry/handler"
	"github.com/kfcempoyee/gofiledrop/internal/registry/regpb"
	"github.com/kfcempoyee/gofiledrop/internal/registry/repository"
	"github.com/kfcempoyee/gofiledrop/internal/registry/service"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stack struct {
	http   http.Handler
	clock  *testClock
	store  *blob.DiskStore
	reaper *service.Reaper
	tmpDir string
}

// поднимает реестр на bufconn и gateway поверх него, с общими tmp и хранилищем
func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := repository.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewFileRepo(db)
	require.NoError(t, err)

	store, err := blob.NewDiskStore(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)

	tmpDir := t.TempDir()
	clock := &testClock{t: time.UnixMilli(1_700_000_000_000)}

	svc := service.NewFileService(repo, store, service.Options{
		CodeTTL:       10 * time.Minute,
		LinkTTL:       24 * time.Hour,
		MaxUploadSize: 1 << 20,
		TmpDir:        tmpDir,
		Now:           clock.Now,
	}, discard)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	regpb.RegisterRegServiceServer(srv, handler.NewGRPCHandler(svc))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	h := &FileHandler{
		TmpDir:        tmpDir,
		MaxUploadSize: 1 << 20,
		GRpcClient:    regpb.NewRegServiceClient(conn),
		Blobs:         store,
		Logger:        discard,
	}

	reaper := service.NewReaper(repo, store, time.Hour, discard)

	return &stack{
		http:   NewRouter(h).Route(discard),
		clock:  clock,
		store:  store,
		reaper: reaper,
		tmpDir: tmpDir,
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func (s *stack) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.http.ServeHTTP(rec, req)
	return rec
}

func (s *stack) upload(t *testing.T, content []byte) uploadResponse {
	t.Helper()

	body, ct := multipartBody(t, "file", "hello.txt", content)
	rec := s.do(t, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp uploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var e ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	return e.Error
}

func TestGateway_UploadDownloadOnce(t *testing.T) {
	s := newStack(t)
	content := []byte("0123456789")

	up := s.upload(t, content)
	require.Len(t, up.AccessCode, 6)
	require.Equal(t, "hello.txt", up.FileName)
	require.Equal(t, int64(10), up.Size)
	require.Equal(t, s.clock.Now().Add(10*time.Minute).UnixMilli(), up.ExpiresAt.UnixMilli())

	// временный файл не остаётся
	entries, err := os.ReadDir(s.tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)

	rec := s.do(t, http.MethodGet, "/download?code="+up.AccessCode, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, content, rec.Body.Bytes())
	require.Equal(t, "attachment; filename=hello.txt", rec.Header().Get("Content-Disposition"))
	require.Equal(t, "10", rec.Header().Get("Content-Length"))
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = s.do(t, http.MethodGet, "/download?code="+up.AccessCode, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_UploadFilesField(t *testing.T) {
	s := newStack(t)

	body, ct := multipartBody(t, "files", "a.bin", []byte{0x00, 0x01, 0x02})
	rec := s.do(t, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_UploadErrors(t *testing.T) {
	s := newStack(t)

	body, ct := multipartBody(t, "other", "a.txt", []byte("x"))
	rec := s.do(t, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No file provided.", decodeError(t, rec))

	rec = s.do(t, http.MethodPost, "/upload", bytes.NewBufferString("plain"), "text/plain")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	big := bytes.Repeat([]byte("a"), 1<<20+1)
	body, ct = multipartBody(t, "file", "big.txt", big)
	rec = s.do(t, http.MethodPost, "/upload", body, ct)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	entries, err := os.ReadDir(s.tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries, "oversize upload leaves no temp file")
}

func TestGateway_InfoAndLinks(t *testing.T) {
	s := newStack(t)
	up := s.upload(t, []byte("data"))

	rec := s.do(t, http.MethodGet, "/files?code="+up.AccessCode, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var info infoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	require.Equal(t, "code", info.Kind)
	require.Equal(t, "hello.txt", info.File.FileName)
	require.Equal(t, int64(4), info.File.Size)

	// info не расходует код
	rec = s.do(t, http.MethodGet, "/download?code="+up.AccessCode, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/files/"+info.File.ID+"/link", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var link linkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&link))
	require.NotEmpty(t, link.Link)

	for range 3 {
		rec = s.do(t, http.MethodGet, "/download?link="+link.Link, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "data", rec.Body.String())
	}

	s.clock.Advance(24*time.Hour + time.Millisecond)
	rec = s.do(t, http.MethodGet, "/files?link="+link.Link, nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Access expired.", decodeError(t, rec))

	res := s.reaper.RunOnce(context.Background())
	require.Equal(t, 1, res.FilesDeleted)

	ok, err := s.store.Exists(context.Background(), info.File.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGateway_MintLinkUnknownFile(t *testing.T) {
	s := newStack(t)

	rec := s.do(t, http.MethodPost, "/files/not-a-uuid/link", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/files/7d444840-9dc0-11d1-b245-5ffdce74fad2/link", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Invalid file.", decodeError(t, rec))
}

func TestGateway_MissingToken(t *testing.T) {
	s := newStack(t)

	for _, path := range []string{"/download", "/files"} {
		rec := s.do(t, http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Missing access code or link.", decodeError(t, rec))
	}
}

func TestGateway_BlobMissing(t *testing.T) {
	s := newStack(t)
	up := s.upload(t, []byte("data"))

	rec := s.do(t, http.MethodGet, "/files?code="+up.AccessCode, nil, "")
	var info infoResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))

	require.NoError(t, s.store.Delete(context.Background(), info.File.ID))

	rec = s.do(t, http.MethodGet, "/download?code="+up.AccessCode, nil, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGateway_HealthAndCORS(t *testing.T) {
	s := newStack(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = s.do(t, http.MethodOptions, "/upload", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gofiledrop_http_requests_total")
}

// клиент реестра, который всегда отвечает заданной ошибкой
type failingClient struct {
	regpb.RegServiceClient
	err error
}

func (f failingClient) ResolveToken(context.Context, *regpb.ResolveTokenRequest, ...grpc.CallOption) (*regpb.ResolveTokenResponse, error) {
	return nil, f.err
}

func TestGateway_RPCErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{status.Error(codes.NotFound, "x"), http.StatusNotFound},
		{status.Error(codes.FailedPrecondition, "x"), http.StatusBadRequest},
		{status.Error(codes.InvalidArgument, "x"), http.StatusBadRequest},
		{status.Error(codes.ResourceExhausted, "x"), http.StatusServiceUnavailable},
		{status.Error(codes.Internal, "File missing."), http.StatusInternalServerError},
		{status.Error(codes.Unavailable, "x"), http.StatusInternalServerError},
		{errors.New("not a status"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := &FileHandler{GRpcClient: failingClient{err: tc.err}, Logger: discard}
			router := NewRouter(h).Route(discard)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files?code=123456", nil))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
