package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lessonscope/internal/gemini"
	"lessonscope/internal/model"
	"lessonscope/internal/repository/memory"
	"lessonscope/internal/storage"
	"lessonscope/internal/wechat"
	"lessonscope/internal/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockExchanger is a mock implementation of wechat.CodeExchanger.
type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Code2Session(ctx context.Context, code string) (*wechat.Session, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wechat.Session), args.Error(1)
}

type stubTranscriber struct {
	text    string
	err     error
	gotURLs []string
}

func (s *stubTranscriber) Transcribe(_ context.Context, audioURL string) (*gemini.Transcript, error) {
	s.gotURLs = append(s.gotURLs, audioURL)
	if s.err != nil {
		return nil, s.err
	}
	return &gemini.Transcript{Text: s.text, Segments: gemini.ParseSegments(s.text)}, nil
}

// stubAnalyzer runs the real parser over a canned model reply. before runs
// first when set; empty returns a nil analysis with no error.
type stubAnalyzer struct {
	reply  string
	err    error
	empty  bool
	before func()
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ string) (*gemini.Analysis, error) {
	if s.before != nil {
		s.before()
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.empty {
		return nil, nil
	}
	return gemini.ParseAnalysis(s.reply)
}

const (
	fixedTranscript = "[教师] 同学们好\n[学生] 老师好"
	fixedAnalysis   = `{"teacher_speech_rate":180,"student_participation":35,"interaction_quality":72,"content_structure":80,"overall_score":76,"suggestions":["多提问","放慢语速"]}`
	testBucketURL   = "https://lessons.cos.ap-guangzhou.myqcloud.com"
)

// fakeStorage recognises URLs under testBucketURL.
type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
	batches [][]string
	signErr error
}

var _ storage.Storage = (*fakeStorage)(nil)

func (f *fakeStorage) Store(_ context.Context, r io.Reader, size int64, name, _ string) (*storage.Object, error) {
	_, _ = io.Copy(io.Discard, r)
	key := storage.NewKey(time.Now(), name)
	return &storage.Object{URL: testBucketURL + "/" + key, Key: key, Size: size}, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) DeleteMany(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, keys)
	return nil
}

func (f *fakeStorage) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.test/" + key + "?sig=1", nil
}

func (f *fakeStorage) KeyFromURL(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, testBucketURL+"/") {
		return "", false
	}
	return strings.TrimPrefix(rawURL, testBucketURL+"/"), true
}

// inlineSubmitter runs jobs synchronously, or rejects them with err.
type inlineSubmitter struct {
	err error
}

func (s inlineSubmitter) Submit(job worker.Job) error {
	if s.err != nil {
		return s.err
	}
	job(context.Background())
	return nil
}

type fixture struct {
	store      *memory.Store
	storage    *fakeStorage
	transcribe *stubTranscriber
	analyze    *stubAnalyzer
	pipeline   *Pipeline
	recordings RecordingService
	reports    ReportService
}

func newFixture(t *testing.T, submitErr error) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.New(),
		storage:    &fakeStorage{},
		transcribe: &stubTranscriber{text: fixedTranscript},
		analyze:    &stubAnalyzer{reply: fixedAnalysis},
	}
	f.pipeline = NewPipeline(f.store, f.transcribe, f.analyze, f.storage, PipelineOptions{StepTimeout: time.Second}, quietLogger())
	f.recordings = NewRecordingService(f.store, f.storage, inlineSubmitter{err: submitErr}, f.pipeline, quietLogger())
	f.reports = NewReportService(f.store)
	return f
}

func (f *fixture) user(t *testing.T, openID string, role model.UserRole) *model.User {
	t.Helper()
	u := &model.User{OpenID: openID, Nickname: DefaultNickname(openID), Role: role}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) recording(t *testing.T, owner *model.User) *model.Recording {
	t.Helper()
	rec, err := f.recordings.Create(context.Background(), owner, CreateRecordingInput{
		Title:    "Lesson 1",
		Duration: 30,
		FileSize: 2048,
		FileURL:  testBucketURL + "/audio/2024/3/" + owner.ID + ".mp3",
	})
	require.NoError(t, err)
	return rec
}

func mustDecimal(t *testing.T, d decimal.NullDecimal) string {
	t.Helper()
	require.True(t, d.Valid)
	return d.Decimal.String()
}

var errBoom = errors.New("boom")
