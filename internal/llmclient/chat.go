package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"legal-contract-review/internal/xjson"
)

const defaultChatMaxAttempts = 3

// ChatRequest is a single system/user prompt pair sent to the chat model.
// User content longer than MaxContentChars characters is truncated (counted
// in runes, not bytes, so CJK text keeps its full budget) before being sent.
// MaxAttempts bounds the total number of tries (initial attempt plus
// retries); zero means defaultChatMaxAttempts. Temperature defaults to 0
// (the zero value) unless the caller wants more creative sampling, e.g. the
// consolidation and RAG prompts.
type ChatRequest struct {
	System          string
	User            string
	MaxContentChars int
	MaxAttempts     int
	Temperature     float64
	// FreeForm skips JSON response-format and strict parsing, for free-form
	// prose answers (the RAG prompt and the assist actions). The map/reduce
	// callers leave this false and get the default strict-JSON behavior.
	FreeForm bool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionPayload struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
	Temperature    float64                `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatResult is the outcome of a Chat call: the parsed JSON object the model
// returned, plus the raw text content it came from (useful for logging and
// for callers that want to re-derive fields the parse dropped).
type ChatResult struct {
	Parsed map[string]any
	Raw    string
}

// Chat sends a chat-completion request in JSON mode and parses the model's
// response as a JSON object. If the model ignores JSON mode and wraps the
// object in prose, Chat falls back to scanning the raw content for the
// first balanced brace-delimited object and parsing that instead.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	const truncationMarker = "...[内容已截断]"
	user := req.User
	if runes := []rune(user); req.MaxContentChars > 0 && len(runes) > req.MaxContentChars {
		cut := req.MaxContentChars
		if marker := []rune(truncationMarker); cut > len(marker) {
			cut -= len(marker)
		}
		user = string(runes[:cut]) + truncationMarker
	}

	payload := chatCompletionPayload{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: user},
		},
		Temperature: req.Temperature,
	}
	if !req.FreeForm {
		payload.ResponseFormat = map[string]interface{}{"type": "json_object"}
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultChatMaxAttempts
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return ChatResult{}, fmt.Errorf("llmclient: marshal chat payload: %w", err)
	}

	var raw string
	attempt := func(ctx context.Context, attemptNum int) (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatURL, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		c.authHeader(httpReq)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var parsed chatCompletionResponse
		if err := sonic.Unmarshal(respBody, &parsed); err != nil {
			return resp.StatusCode, fmt.Errorf("llmclient: decode chat response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return resp.StatusCode, fmt.Errorf("llmclient: chat response had no choices")
		}
		raw = parsed.Choices[0].Message.Content
		return resp.StatusCode, nil
	}

	if err := withRetry(ctx, maxAttempts, attempt); err != nil {
		return ChatResult{}, err
	}

	if req.FreeForm {
		return ChatResult{Raw: raw}, nil
	}

	obj, parseErr := parseJSONObject(raw)
	if parseErr != nil {
		c.logger.Warn("llmclient.chat.parse_fallback_failed", zap.Error(parseErr))
		return ChatResult{Raw: raw}, parseErr
	}
	return ChatResult{Parsed: obj, Raw: raw}, nil
}

// parseJSONObject tries sonic's fast path first, then xjson in case sonic
// chokes on something encoding/json tolerates, and only after both decoders
// fail does it fall back to locating the first brace-balanced {...} span in
// s and decoding that, to tolerate models that wrap their JSON answer in
// explanatory prose despite being asked for JSON mode.
func parseJSONObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := sonic.UnmarshalString(s, &obj); err == nil {
		return obj, nil
	}
	if err := xjson.Unmarshal([]byte(s), &obj); err == nil {
		return obj, nil
	}

	span, ok := extractBalancedObject(s)
	if !ok {
		return nil, fmt.Errorf("llmclient: no JSON object found in model response")
	}
	if err := sonic.UnmarshalString(span, &obj); err != nil {
		if xerr := xjson.Unmarshal([]byte(span), &obj); xerr != nil {
			return nil, fmt.Errorf("llmclient: failed to parse extracted JSON object: %w", err)
		}
	}
	return obj, nil
}

// extractBalancedObject scans s for the first top-level {...} span, tracking
// brace depth and skipping over braces inside string literals.
func extractBalancedObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+len(string(r))], true
				}
			}
		}
	}
	return "", false
}
