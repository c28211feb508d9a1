// Package wechat exchanges mini-program login codes for openids.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lessonscope/internal/config"
	apperr "lessonscope/internal/errors"
)

// Session is the identity returned by jscode2session.
type Session struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
}

// CodeExchanger is the port the login flow depends on.
type CodeExchanger interface {
	Code2Session(ctx context.Context, code string) (*Session, error)
}

// Client calls the WeChat jscode2session endpoint.
type Client struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client
}

var _ CodeExchanger = (*Client)(nil)

// NewClient builds a Client from configuration. Missing credentials are
// reported when Code2Session is called, not here.
func NewClient(cfg config.WeChatConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type code2SessionResponse struct {
	Session
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Code2Session exchanges a one-time login code for the user's openid.
func (c *Client) Code2Session(ctx context.Context, code string) (*Session, error) {
	if c.appID == "" || c.appSecret == "" {
		return nil, fmt.Errorf("wechat: appid or secret unset: %w", apperr.ErrConfiguration)
	}

	q := url.Values{}
	q.Set("appid", c.appID)
	q.Set("secret", c.appSecret)
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sns/jscode2session?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("wechat: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wechat: %w: %v", apperr.ErrExternalAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wechat: %w: http status %d", apperr.ErrExternalAuth, resp.StatusCode)
	}

	var body code2SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("wechat: %w: decode: %v", apperr.ErrExternalAuth, err)
	}
	if body.ErrCode != 0 {
		return nil, fmt.Errorf("wechat: %w: errcode %d: %s", apperr.ErrExternalAuth, body.ErrCode, body.ErrMsg)
	}
	if body.OpenID == "" {
		return nil, fmt.Errorf("wechat: %w: empty openid", apperr.ErrExternalAuth)
	}
	return &body.Session, nil
}
