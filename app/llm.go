// Shared client for the external LLM provider. Every AI-backed feature goes
// through Invoke; audio jobs additionally use Transcribe.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app/config"
)

// Provider failure classes. Callers branch on these to decide between a hard
// failure and a degraded-but-saved result.
var (
	ErrProviderAuth        = errors.New("llm provider rejected credentials")
	ErrProviderQuota       = errors.New("llm provider quota or rate limit reached")
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	ErrSchemaMismatch      = errors.New("llm response did not match requested shape")
)

var llmc *LLMClient

// InitLLM wires the shared LLM client from the environment.
func InitLLM() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for llm: %v", err)
	}
	llmc = NewLLMClient(cfg.LLM)
}

type LLMClient struct {
	baseURL            string
	apiKey             string
	model              string
	transcriptionModel string
	httpc              *http.Client
}

func NewLLMClient(cfg config.LLMConfig) *LLMClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	tmodel := cfg.TranscriptionModel
	if tmodel == "" {
		tmodel = "whisper-1"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMClient{
		baseURL:            base,
		apiKey:             cfg.APIKey,
		model:              model,
		transcriptionModel: tmodel,
		httpc:              &http.Client{Timeout: timeout},
	}
}

// InvocationResult carries either free text or, when a schema was requested,
// the structured JSON payload.
type InvocationResult struct {
	Text string
	JSON json.RawMessage
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *providerError `json:"error"`
}

type providerError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Invoke sends one instruction plus user input to the provider. When schema is
// non-nil the provider is asked for a JSON object conforming to it, and the
// response is checked to be valid JSON; the shape itself is trusted to the
// provider beyond that.
func (c *LLMClient) Invoke(ctx context.Context, instruction, input string, schema json.RawMessage) (InvocationResult, error) {
	system := instruction
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: input},
		},
	}
	if schema != nil {
		req.Messages[0].Content = fmt.Sprintf(
			"%s\n\nRespond with a single JSON object matching this schema:\n%s", instruction, schema)
		req.ResponseFormat = &respFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := c.postJSON(ctx, c.baseURL+"/chat/completions", req, &resp); err != nil {
		return InvocationResult{}, err
	}
	if len(resp.Choices) == 0 {
		return InvocationResult{}, fmt.Errorf("%w: empty completion", ErrProviderUnavailable)
	}

	content := resp.Choices[0].Message.Content
	out := InvocationResult{Text: content}
	if schema != nil {
		trimmed := strings.TrimSpace(content)
		if !json.Valid([]byte(trimmed)) || !strings.HasPrefix(trimmed, "{") {
			return InvocationResult{}, fmt.Errorf("%w: %.120s", ErrSchemaMismatch, trimmed)
		}
		out.JSON = json.RawMessage(trimmed)
	}
	return out, nil
}

type transcriptionResponse struct {
	Text  string         `json:"text"`
	Error *providerError `json:"error"`
}

// Transcribe uploads audio to the provider's transcription endpoint and
// returns the transcript text.
func (c *LLMClient) Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", c.transcriptionModel); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", classifyStatus(res.StatusCode, body)
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return tr.Text, nil
}

// postJSON mirrors the usual JSON round trip with a short retry for 5xx and
// network hiccups. 401/403 and 429 are terminal and mapped to their typed
// errors immediately: auth failures never heal on retry and rate limits
// belong to the caller's degraded path.
func (c *LLMClient) postJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		res, err := c.httpc.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			time.Sleep(time.Duration(250*(attempt+1)) * time.Millisecond)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(res.Body, 4<<20))
		res.Body.Close()
		if readErr != nil {
			return readErr
		}

		if res.StatusCode == http.StatusOK {
			return json.Unmarshal(body, out)
		}

		classified := classifyStatus(res.StatusCode, body)
		if res.StatusCode >= 500 {
			lastErr = classified
			time.Sleep(time.Duration(250*(attempt+1)) * time.Millisecond)
			continue
		}
		return classified
	}
	return lastErr
}

func classifyStatus(status int, body []byte) error {
	var wrapper struct {
		Error *providerError `json:"error"`
	}
	_ = json.Unmarshal(body, &wrapper)
	msg := ""
	if wrapper.Error != nil {
		msg = wrapper.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: http %d: %s", ErrProviderAuth, status, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d: %s", ErrProviderQuota, status, msg)
	case quotaFlavored(msg) || (wrapper.Error != nil && wrapper.Error.Type == "insufficient_quota"):
		return fmt.Errorf("%w: http %d: %s", ErrProviderQuota, status, msg)
	default:
		return fmt.Errorf("%w: http %d: %s", ErrProviderUnavailable, status, msg)
	}
}

func quotaFlavored(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "quota") || strings.Contains(m, "rate limit") || strings.Contains(m, "billing")
}
