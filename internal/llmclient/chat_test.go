package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

func testClient(t *testing.T, chatURL, embedURL string) *Client {
	t.Helper()
	return New(Config{
		ChatURL:    chatURL,
		EmbedURL:   embedURL,
		ChatModel:  "test-chat",
		EmbedModel: "test-embed",
	}, zap.NewNop())
}

func TestChatParsesJSONMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: `{"risk_level":"high","score":0.9}`}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "")
	result, err := c.Chat(context.Background(), ChatRequest{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Parsed["risk_level"] != "high" {
		t.Fatalf("expected risk_level high, got %v", result.Parsed["risk_level"])
	}
}

func TestChatFallsBackToBraceExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "Sure, here is the analysis:\n```json\n{\"risk_level\": \"medium\"}\n```\nLet me know if you need more."}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "")
	result, err := c.Chat(context.Background(), ChatRequest{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Parsed["risk_level"] != "medium" {
		t.Fatalf("expected risk_level medium, got %v", result.Parsed["risk_level"])
	}
}

func TestChatNoRetryOn4xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "")
	_, err := c.Chat(context.Background(), ChatRequest{System: "s", User: "u"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call for a 4xx response, got %d", calls)
	}
}

func TestChatRetriesOn5xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Content: `{"ok":true}`}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := c.Chat(ctx, ChatRequest{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls (2 failures + 1 success), got %d", calls)
	}
	if result.Parsed["ok"] != true {
		t.Fatalf("expected ok=true, got %v", result.Parsed)
	}
}

func TestChatTruncatesUserContent(t *testing.T) {
	var seenRunes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatCompletionPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		for _, m := range payload.Messages {
			if m.Role == "user" {
				seenRunes = len([]rune(m.Content))
			}
		}
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Content: `{"ok":true}`}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "")
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	const maxContentChars = 50
	_, err := c.Chat(context.Background(), ChatRequest{System: "s", User: string(long), MaxContentChars: maxContentChars})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenRunes != maxContentChars {
		t.Fatalf("expected truncated+marked user content of %d runes, got %d", maxContentChars, seenRunes)
	}
}

// CJK input must be truncated by rune count, not byte count: a byte-based
// cut would hand Chinese contracts a third of the intended budget and could
// slice mid-character, sending invalid UTF-8 upstream.
func TestChatTruncatesCJKContentByRunes(t *testing.T) {
	var seenContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatCompletionPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		for _, m := range payload.Messages {
			if m.Role == "user" {
				seenContent = m.Content
			}
		}
		resp := chatCompletionResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Content: `{"ok":true}`}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "")
	long := strings.Repeat("保", 200)
	const maxContentChars = 50
	_, err := c.Chat(context.Background(), ChatRequest{System: "s", User: long, MaxContentChars: maxContentChars})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len([]rune(seenContent)); got != maxContentChars {
		t.Fatalf("expected %d runes of CJK content after truncation, got %d", maxContentChars, got)
	}
	if !utf8.ValidString(seenContent) {
		t.Fatalf("truncated content is not valid UTF-8")
	}
	if !strings.HasSuffix(seenContent, "...[内容已截断]") {
		t.Fatalf("expected truncation marker suffix, got %q", seenContent)
	}
}

// Exhausting retries against a persistently failing upstream must surface
// the localized network message, not the raw upstream response body,
// regardless of whether the failure was connection-level or a 5xx.
func TestChatExhausted5xxSurfacesLocalizedMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"upstream exploded"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := c.Chat(ctx, ChatRequest{System: "s", User: "u", MaxAttempts: 2})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected a NetworkError after 5xx exhaustion, got %T: %v", err, err)
	}
	if strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("user-facing error leaked the upstream body: %q", err.Error())
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected the underlying status error to stay reachable via Unwrap, got %v", err)
	}
}

func TestExtractBalancedObjectNestedBraces(t *testing.T) {
	s := `prefix {"a": {"b": 1}, "c": "has } brace"} suffix`
	span, ok := extractBalancedObject(s)
	if !ok {
		t.Fatal("expected to find a balanced object")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(span), &m); err != nil {
		t.Fatalf("extracted span did not parse as JSON: %v (%q)", err, span)
	}
}
