package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonscope/internal/config"
	apperr "lessonscope/internal/errors"
)

func TestNewKey(t *testing.T) {
	now := time.Date(2024, time.March, 9, 10, 0, 0, 0, time.UTC)
	key := NewKey(now, "lesson one.M4A")

	assert.True(t, strings.HasPrefix(key, "audio/2024/3/"), key)
	assert.True(t, strings.HasSuffix(key, ".M4A"), key)
	assert.NotEqual(t, key, NewKey(now, "lesson one.M4A"))
	assert.Equal(t, "audio/2024/3/", NewKey(now, "")[:len("audio/2024/3/")])
}

func TestUploadPolicy_Check(t *testing.T) {
	p := NewUploadPolicy(1024, nil)

	mt, err := p.Check(10, "audio/MPEG; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", mt)

	tests := []struct {
		name string
		size int64
		ct   string
	}{
		{"empty", 0, "audio/wav"},
		{"too large", 2048, "audio/wav"},
		{"video", 10, "video/mp4"},
		{"garbage", 10, ";;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Check(tt.size, tt.ct)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	assert.Equal(t, DefaultMaxUploadBytes, NewUploadPolicy(0, nil).MaxBytes)
}

func TestKeyFromPrefix(t *testing.T) {
	base := "https://bucket.cos.ap-guangzhou.myqcloud.com"

	key, ok := keyFromPrefix(base+"/audio/2024/3/a.mp3?sign=1", base)
	require.True(t, ok)
	assert.Equal(t, "audio/2024/3/a.mp3", key)

	for _, u := range []string{
		"https://elsewhere.example.com/audio/2024/3/a.mp3",
		base + "/other/a.mp3",
		base + "/audio/../secret",
		"",
	} {
		_, ok := keyFromPrefix(u, base)
		assert.False(t, ok, u)
	}
}

type fakeS3 struct {
	uploads   []*s3.PutObjectInput
	body      []byte
	deleted   []string
	batches   []int
	uploadErr error
	deleteErr error
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, in)
	f.body, _ = io.ReadAll(in.Body)
	return &manager.UploadOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.batches = append(f.batches, len(in.Delete.Objects))
	for _, o := range in.Delete.Objects {
		f.deleted = append(f.deleted, *o.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

func newFakeS3Storage(f *fakeS3) *S3Storage {
	return &S3Storage{
		client:    f,
		uploader:  f,
		presigner: f,
		bucket:    "lessons",
		baseURL:   s3PublicBase(config.StorageConfig{Bucket: "lessons", Region: "ap-guangzhou"}, ""),
	}
}

func TestS3Storage_Store(t *testing.T) {
	f := &fakeS3{}
	s := newFakeS3Storage(f)

	obj, err := s.Store(context.Background(), bytes.NewReader([]byte("RIFF")), 4, "class.wav", "audio/wav")
	require.NoError(t, err)

	require.Len(t, f.uploads, 1)
	assert.Equal(t, "lessons", *f.uploads[0].Bucket)
	assert.Equal(t, "audio/wav", *f.uploads[0].ContentType)
	assert.Equal(t, []byte("RIFF"), f.body)
	assert.Equal(t, "https://lessons.cos.ap-guangzhou.myqcloud.com/"+obj.Key, obj.URL)
	assert.Equal(t, int64(4), obj.Size)

	key, ok := s.KeyFromURL(obj.URL)
	require.True(t, ok)
	assert.Equal(t, obj.Key, key)
}

func TestS3Storage_StoreFailure(t *testing.T) {
	s := newFakeS3Storage(&fakeS3{uploadErr: errors.New("403 AccessDenied")})

	_, err := s.Store(context.Background(), strings.NewReader("x"), 1, "a.mp3", "audio/mpeg")
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestS3Storage_DeleteManyBatches(t *testing.T) {
	f := &fakeS3{}
	s := newFakeS3Storage(f)

	keys := make([]string, 2500)
	for i := range keys {
		keys[i] = fmt.Sprintf("audio/2024/1/%d.mp3", i)
	}
	require.NoError(t, s.DeleteMany(context.Background(), keys))
	assert.Equal(t, []int{1000, 1000, 500}, f.batches)
	assert.Len(t, f.deleted, 2500)

	require.NoError(t, s.DeleteMany(context.Background(), nil))
	assert.Len(t, f.batches, 3)
}

func TestS3Storage_DeleteAndSign(t *testing.T) {
	f := &fakeS3{}
	s := newFakeS3Storage(f)

	require.NoError(t, s.Delete(context.Background(), "audio/2024/1/a.mp3"))
	assert.Equal(t, []string{"audio/2024/1/a.mp3"}, f.deleted)

	u, err := s.SignedURL(context.Background(), "audio/2024/1/a.mp3", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Signature")

	f.deleteErr = errors.New("timeout")
	assert.ErrorIs(t, s.Delete(context.Background(), "k"), apperr.ErrStorage)
}

func TestS3PublicBase(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com",
		s3PublicBase(config.StorageConfig{PublicBaseURL: "https://cdn.example.com/", Bucket: "b"}, ""))
	assert.Equal(t, "http://localhost:9000/b",
		s3PublicBase(config.StorageConfig{Bucket: "b"}, "http://localhost:9000"))
	assert.Equal(t, "https://b.cos.ap-shanghai.myqcloud.com",
		s3PublicBase(config.StorageConfig{Bucket: "b", Region: "ap-shanghai"}, ""))
}

func TestNewS3Storage(t *testing.T) {
	s, err := NewS3Storage(context.Background(), config.StorageConfig{
		Bucket:    "lessons",
		Region:    "us-east-1",
		Endpoint:  "http://localhost:9000/",
		AccessKey: "ak",
		SecretKey: "sk",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/lessons", s.baseURL)

	u, err := s.SignedURL(context.Background(), "audio/2024/1/a.mp3", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "/lessons/audio/2024/1/a.mp3")
	assert.Contains(t, u, "X-Amz-Expires=600")

	_, err = NewS3Storage(context.Background(), config.StorageConfig{})
	assert.Error(t, err)
}

func TestMinIOClient(t *testing.T) {
	m, err := newMinIOClient(config.StorageConfig{
		Bucket:    "lessons",
		Endpoint:  "http://127.0.0.1:9000",
		Region:    "us-east-1",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/lessons", m.baseURL)

	key, ok := m.KeyFromURL("http://127.0.0.1:9000/lessons/audio/2024/5/x.wav")
	require.True(t, ok)
	assert.Equal(t, "audio/2024/5/x.wav", key)

	u, err := m.SignedURL(context.Background(), key, time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "X-Amz-Signature")

	_, err = newMinIOClient(config.StorageConfig{})
	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Driver: "ftp"})
	assert.Error(t, err)
}
