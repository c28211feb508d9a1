package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonscope/internal/auth"
	apperr "lessonscope/internal/errors"
	"lessonscope/internal/gemini"
	"lessonscope/internal/handler"
	"lessonscope/internal/middleware"
	"lessonscope/internal/repository/memory"
	"lessonscope/internal/service"
	"lessonscope/internal/storage"
	"lessonscope/internal/wechat"
	"lessonscope/internal/worker"
)

const (
	bucketURL  = "https://lessons.cos.ap-guangzhou.myqcloud.com"
	transcript = "[教师] 今天我们复习分数\n[学生] 老师我有问题"
	analysis   = "分析如下：\n```json\n" + `{"teacher_speech_rate":150,"student_participation":40,"interaction_quality":70,"content_structure":85,"overall_score":78,"suggestions":["增加提问"]}` + "\n```"
)

type openIDExchanger struct{}

func (openIDExchanger) Code2Session(_ context.Context, code string) (*wechat.Session, error) {
	return &wechat.Session{OpenID: "openid-" + code, SessionKey: "sk"}, nil
}

type cannedTranscriber struct{}

func (cannedTranscriber) Transcribe(context.Context, string) (*gemini.Transcript, error) {
	return &gemini.Transcript{Text: transcript, Segments: gemini.ParseSegments(transcript)}, nil
}

type cannedAnalyzer struct {
	reply string
}

func (a cannedAnalyzer) Analyze(context.Context, string) (*gemini.Analysis, error) {
	return gemini.ParseAnalysis(a.reply)
}

type bucketStorage struct{}

func (bucketStorage) Store(_ context.Context, r io.Reader, size int64, name, _ string) (*storage.Object, error) {
	_, _ = io.Copy(io.Discard, r)
	key := storage.NewKey(time.Now(), name)
	return &storage.Object{URL: bucketURL + "/" + key, Key: key, Size: size}, nil
}

func (bucketStorage) Delete(context.Context, string) error       { return nil }
func (bucketStorage) DeleteMany(context.Context, []string) error { return nil }

func (bucketStorage) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.test/" + key, nil
}

func (bucketStorage) KeyFromURL(rawURL string) (string, bool) {
	key, ok := strings.CutPrefix(rawURL, bucketURL+"/")
	return key, ok
}

type envOptions struct {
	analysisReply string
	loginLimiter  middleware.RateLimiter
}

type testEnv struct {
	e *echo.Echo
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	if opts.analysisReply == "" {
		opts.analysisReply = analysis
	}
	if opts.loginLimiter == nil {
		opts.loginLimiter = middleware.NewKeyedRateLimiter(1000, 1000, time.Minute)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New()
	jwtService := auth.NewJWTService("router-test-secret", time.Hour)
	authService := service.NewAuthService(store, jwtService, auth.NewSessionCache(nil), openIDExchanger{})
	userService := service.NewUserService(store.Users(), nil)

	pool := worker.New(worker.Config{Workers: 2, QueueSize: 8}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})

	st := bucketStorage{}
	pipeline := service.NewPipeline(store, cannedTranscriber{}, cannedAnalyzer{reply: opts.analysisReply}, st,
		service.PipelineOptions{StepTimeout: 5 * time.Second}, logger)

	e := echo.New()
	Register(e, Handlers{
		Auth:      handler.NewAuthHandler(authService),
		User:      handler.NewUserHandler(userService),
		Upload:    handler.NewUploadHandler(st, storage.NewUploadPolicy(0, nil)),
		Recording: handler.NewRecordingHandler(service.NewRecordingService(store, st, pool, pipeline, logger)),
		Report:    handler.NewReportHandler(service.NewReportService(store)),
		Admin:     handler.NewAdminHandler(service.NewAdminService(store)),
		Health:    handler.NewHealthHandler(time.Now()),
	}, Options{
		Logger:            logger,
		JWTSecret:         jwtService.Secret(),
		Sessions:          authService,
		Users:             userService,
		LoginLimiter:      opts.loginLimiter,
		TranscribeLimiter: middleware.NewKeyedRateLimiter(1000, 1000, time.Minute),
		Gatherer:          prometheus.NewRegistry(),
	})
	return &testEnv{e: e}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return env.serve(t, req, token)
}

func (env *testEnv) serve(t *testing.T, req *http.Request, token string) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	var out envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (env *testEnv) login(t *testing.T, code string) (token, userID, role string) {
	t.Helper()
	status, resp := env.do(t, http.MethodPost, "/api/auth/wechat-login", "", map[string]string{"code": code})
	require.Equal(t, http.StatusOK, status, resp.Message)

	var data struct {
		Token string `json:"token"`
		User  struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data.Token, data.User.ID, data.User.Role
}

func (env *testEnv) upload(t *testing.T, token, name, contentType string, payload []byte) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return env.serve(t, req, token)
}

func (env *testEnv) createRecording(t *testing.T, token, fileURL string) string {
	t.Helper()
	status, resp := env.do(t, http.MethodPost, "/api/recordings", token, map[string]any{
		"title":     "Lesson 1",
		"duration":  30,
		"file_size": 2048,
		"file_url":  fileURL,
	})
	require.Equal(t, http.StatusOK, status, resp.Message)

	var rec struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, "uploaded", rec.Status)
	return rec.ID
}

// poll fetches path without failing the test, for use inside Eventually.
func (env *testEnv) poll(method, path, token string) (int, map[string]any) {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	var out struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		return rec.Code, nil
	}
	return rec.Code, out.Data
}

func TestUploadTranscribeAndReport(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _, _ := env.login(t, "teacher")

	status, resp := env.upload(t, token, "lesson.mp3", "audio/mpeg", []byte("fake mp3 bytes"))
	require.Equal(t, http.StatusOK, status, resp.Message)
	var obj storage.Object
	require.NoError(t, json.Unmarshal(resp.Data, &obj))
	assert.True(t, strings.HasPrefix(obj.Key, storage.KeyPrefix))
	assert.Equal(t, int64(len("fake mp3 bytes")), obj.Size)

	id := env.createRecording(t, token, obj.URL)

	status, resp = env.do(t, http.MethodPost, "/api/recordings/"+id+"/transcribe", token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.NotEmpty(t, resp.Message)

	var report map[string]any
	require.Eventually(t, func() bool {
		status, data := env.poll(http.MethodGet, "/api/reports/recording/"+id, token)
		report = data
		if status != http.StatusOK || data["status"] != "completed" {
			return false
		}
		_, rec := env.poll(http.MethodGet, "/api/recordings/"+id, token)
		return rec["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	for _, field := range []string{"teacher_speech_rate", "student_participation", "interaction_quality", "content_structure", "overall_score"} {
		assert.NotNil(t, report[field], field)
	}
	assert.NotEmpty(t, report["transcript"])
	assert.Equal(t, []any{"增加提问"}, report["suggestions"])

	status, resp = env.do(t, http.MethodPost, "/api/recordings/"+id+"/transcribe", token, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", resp.Code)
}

func TestUnparsableAnalysisFailsRecording(t *testing.T) {
	env := newTestEnv(t, envOptions{analysisReply: "抱歉，我无法分析这段内容。"})
	token, _, _ := env.login(t, "teacher")
	id := env.createRecording(t, token, bucketURL+"/audio/2024/5/lesson.wav")

	status, _ := env.do(t, http.MethodPost, "/api/recordings/"+id+"/transcribe", token, nil)
	require.Equal(t, http.StatusOK, status)

	require.Eventually(t, func() bool {
		_, data := env.poll(http.MethodGet, "/api/recordings/"+id, token)
		return data["status"] == "failed"
	}, 5*time.Second, 20*time.Millisecond)

	status, resp := env.do(t, http.MethodGet, "/api/reports/recording/"+id, token, nil)
	require.Equal(t, http.StatusOK, status)
	var report map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, "failed", report["status"])
	assert.Nil(t, report["overall_score"])
}

func TestOwnershipAndAdminAccess(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	adminToken, _, adminRole := env.login(t, "admin")
	ownerToken, _, ownerRole := env.login(t, "owner")
	strangerToken, _, _ := env.login(t, "stranger")
	require.Equal(t, "admin", adminRole)
	require.Equal(t, "user", ownerRole)

	id := env.createRecording(t, ownerToken, bucketURL+"/audio/2024/5/a.mp3")

	status, resp := env.do(t, http.MethodGet, "/api/recordings/"+id, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "FORBIDDEN", resp.Code)

	status, _ = env.do(t, http.MethodDelete, "/api/recordings/"+id, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodGet, "/api/admin/stats", ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodGet, "/api/recordings/"+id, adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp = env.do(t, http.MethodGet, "/api/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var stats service.SystemStats
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, int64(3), stats.Users)
	assert.Equal(t, int64(1), stats.Recordings)

	status, _ = env.do(t, http.MethodDelete, "/api/recordings/"+id, adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp = env.do(t, http.MethodGet, "/api/recordings/"+id, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", resp.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _, _ := env.login(t, "teacher")

	status, _ := env.do(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp := env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)

	status, resp = env.do(t, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)
}

func TestListAndBatchDelete(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	token, _, _ := env.login(t, "teacher")
	first := env.createRecording(t, token, bucketURL+"/audio/2024/5/1.mp3")
	second := env.createRecording(t, token, bucketURL+"/audio/2024/5/2.mp3")

	status, resp := env.do(t, http.MethodGet, "/api/recordings?limit=1", token, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Recordings []struct {
			ID string `json:"id"`
		} `json:"recordings"`
		Limit int   `json:"limit"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Recordings, 1)
	assert.Equal(t, second, page.Recordings[0].ID)
	assert.Equal(t, 1, page.Limit)
	assert.Equal(t, int64(2), page.Total)

	status, _ = env.do(t, http.MethodGet, "/api/recordings?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = env.do(t, http.MethodPost, "/api/recordings/batch-delete", token, map[string]any{"ids": []string{first, second}})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.JSONEq(t, `{"deleted":2}`, string(resp.Data))

	status, _ = env.do(t, http.MethodPost, "/api/recordings/batch-delete", token, map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	status, resp := env.do(t, http.MethodPost, "/api/auth/wechat-login", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)

	token, _, _ := env.login(t, "teacher")

	status, resp = env.do(t, http.MethodPost, "/api/recordings", token, map[string]any{"title": "no file"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)

	status, _ = env.upload(t, token, "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.upload(t, token, "empty.wav", "audio/wav", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPut, "/api/users/me", token, map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = env.do(t, http.MethodPut, "/api/users/me", token, map[string]string{"nickname": "王老师"})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), "王老师")
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, path := range []string{"/api/users/me", "/api/recordings", "/api/reports"} {
		status, resp := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.False(t, resp.Success)
	}

	status, _ := env.do(t, http.MethodGet, "/api/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, envOptions{loginLimiter: middleware.NewKeyedRateLimiter(0.001, 1, time.Minute)})

	env.login(t, "first")
	status, resp := env.do(t, http.MethodPost, "/api/auth/wechat-login", "", map[string]string{"code": "second"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", resp.Code)
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.Success)
	assert.Equal(t, "OK", health.Message)

	status, resp := env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.Code)

	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"domain error", apperr.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"app http error", apperr.NewHTTPError(http.StatusTooManyRequests, "slow down", "RATE_LIMITED"), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"echo not found", echo.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"body limit", echo.ErrStatusRequestEntityTooLarge, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"echo internal", echo.NewHTTPError(http.StatusInternalServerError).SetInternal(apperr.ErrStorage), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toHTTPError(tt.err)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}
