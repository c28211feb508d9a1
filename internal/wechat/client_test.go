package wechat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonscope/internal/config"
	apperr "lessonscope/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.WeChatConfig{AppID: "wxapp", AppSecret: "s3cret", BaseURL: srv.URL})
}

func TestCode2Session_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sns/jscode2session", r.URL.Path)
		assert.Equal(t, "wxapp", r.URL.Query().Get("appid"))
		assert.Equal(t, "s3cret", r.URL.Query().Get("secret"))
		assert.Equal(t, "code-1", r.URL.Query().Get("js_code"))
		assert.Equal(t, "authorization_code", r.URL.Query().Get("grant_type"))
		_, _ = w.Write([]byte(`{"openid":"oABC123456","session_key":"sk"}`))
	})

	s, err := c.Code2Session(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "oABC123456", s.OpenID)
	assert.Equal(t, "sk", s.SessionKey)
}

func TestCode2Session_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"provider errcode", http.StatusOK, `{"errcode":40029,"errmsg":"invalid code"}`, apperr.ErrExternalAuth},
		{"empty openid", http.StatusOK, `{"session_key":"sk"}`, apperr.ErrExternalAuth},
		{"bad json", http.StatusOK, `<html>`, apperr.ErrExternalAuth},
		{"http error", http.StatusBadGateway, ``, apperr.ErrExternalAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Code2Session(context.Background(), "code")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCode2Session_Unconfigured(t *testing.T) {
	c := NewClient(config.WeChatConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Code2Session(context.Background(), "code")
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}
