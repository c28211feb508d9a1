// Package gemini transcribes lesson audio and scores the transcript with the
// Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"lessonscope/internal/config"
	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
)

// Transcript is the speech-to-text result.
type Transcript struct {
	Text     string
	Segments model.Segments
}

// Transcriber turns an audio URL into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (*Transcript, error)
}

// Analyzer scores a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*Analysis, error)
}

const transcribePrompt = `请将这段音频转换为文字，并识别说话人（教师/学生）。

请按照以下格式输出：
[教师] 具体说话内容
[学生] 具体说话内容

如果无法区分说话人，请标注为 [未知]。`

const analyzePrompt = `请分析以下课堂转写文本，从以下维度进行评估：

1. 教师语速（每分钟字数）
2. 学生参与度（学生发言次数和时长占比）
3. 互动质量（师生对话的频率和深度）
4. 内容结构（教学内容的条理性）

转写文本：
%s

请以 JSON 格式输出分析结果：
{
  "teacher_speech_rate": 数字（每分钟字数）,
  "student_participation": 数字（0-100）,
  "interaction_quality": 数字（0-100）,
  "content_structure": 数字（0-100）,
  "overall_score": 数字（0-100）,
  "suggestions": ["建议1", "建议2", ...]
}`

const (
	transcribeMaxTokens = 4096
	analyzeMaxTokens    = 2048

	defaultMaxAudioBytes int64 = 100 * 1024 * 1024
)

// Client implements Transcriber and Analyzer.
type Client struct {
	apiKey        string
	baseURL       string
	model         string
	maxAudioBytes int64
	httpClient    *http.Client
}

var (
	_ Transcriber = (*Client)(nil)
	_ Analyzer    = (*Client)(nil)
)

// NewClient builds a Client. maxAudioBytes caps the audio download; a
// non-positive value uses the upload ceiling.
func NewClient(cfg config.GeminiConfig, maxAudioBytes int64) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if maxAudioBytes <= 0 {
		maxAudioBytes = defaultMaxAudioBytes
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         model,
		maxAudioBytes: maxAudioBytes,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func newGenerationConfig(maxTokens int) generationConfig {
	return generationConfig{Temperature: 0.4, TopK: 32, TopP: 1, MaxOutputTokens: maxTokens}
}

// Transcribe downloads the audio and asks the model for a speaker-tagged transcript.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (*Transcript, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: api key unset: %w", apperr.ErrConfiguration)
	}

	audio, err := c.download(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	text, err := c.generate(ctx, generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: AudioMimeType(audioURL), Data: base64.StdEncoding.EncodeToString(audio)}},
			{Text: transcribePrompt},
		}}},
		GenerationConfig: newGenerationConfig(transcribeMaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini transcribe: %w", err)
	}
	return &Transcript{Text: text, Segments: ParseSegments(text)}, nil
}

// Analyze scores the transcript and parses the JSON the model returns.
func (c *Client) Analyze(ctx context.Context, transcript string) (*Analysis, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: api key unset: %w", apperr.ErrConfiguration)
	}

	text, err := c.generate(ctx, generateRequest{
		Contents:         []content{{Parts: []part{{Text: fmt.Sprintf(analyzePrompt, transcript)}}}},
		GenerationConfig: newGenerationConfig(analyzeMaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini analyze: %w", err)
	}
	return ParseAnalysis(text)
}

func (c *Client) download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: build audio request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the signed URL; keep only the cause.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("gemini: download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: download audio: http status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("gemini: read audio: %w", err)
	}
	if int64(len(data)) > c.maxAudioBytes {
		return nil, fmt.Errorf("gemini: audio exceeds %d bytes", c.maxAudioBytes)
	}
	return data, nil
}

func (c *Client) generate(ctx context.Context, body generateRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The url carries the key; report the host only.
		return "", fmt.Errorf("call %s: request failed", req.URL.Host)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response has no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// AudioMimeType infers the inline mime type from the URL path extension.
func AudioMimeType(audioURL string) string {
	p := audioURL
	if u, err := url.Parse(audioURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp3":
		return "audio/mp3"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/wav"
	}
}
