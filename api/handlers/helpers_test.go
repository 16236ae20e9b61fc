package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/structgen/llm/providers/openaicompat"
	"github.com/BaSui01/structgen/structured"
)

// fakeUpstream 模拟 OpenAI 兼容后端
type fakeUpstream struct {
	content     string
	reasoning   string
	status      int
	chunks      []string
	breakStream bool
	modelsCode  int
	calls       atomic.Int32
}

func (u *fakeUpstream) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		if u.modelsCode != 0 {
			w.WriteHeader(u.modelsCode)
			_, _ = w.Write([]byte(`{"error":{"message":"down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		var body struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		if u.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(u.status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
			return
		}

		if body.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, c := range u.chunks {
				chunk, _ := json.Marshal(map[string]any{
					"id": "s", "model": "gpt-4o",
					"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": c}}},
				})
				fmt.Fprintf(w, "data: %s\n\n", chunk)
				flusher.Flush()
			}
			if u.breakStream {
				fmt.Fprint(w, "data: {broken\n\n")
				return
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "c", "model": "gpt-4o",
			"choices": []map[string]any{{
				"index":   0,
				"message": map[string]string{"role": "assistant", "content": u.content, "reasoning_content": u.reasoning},
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(upstreamURL string) *openaicompat.Provider {
	return openaicompat.New(openaicompat.Config{
		APIKey:       "sk-test",
		BaseURL:      upstreamURL + "/v1",
		DefaultModel: "gpt-4o",
		Timeout:      5 * time.Second,
	}, nil)
}

// newAPI 组装完整管线并挂载到路由上，contextMaxFields 为 3
func newAPI(t *testing.T, up *fakeUpstream) *httptest.Server {
	t.Helper()
	upstream := up.start(t)
	inv := structured.NewInvoker(newProvider(upstream.URL), true, 5*time.Second, nil)
	gen := structured.NewGenerator(structured.Config{DefaultModel: "gpt-4o", ContextMaxFields: 3}, inv, nil)
	return newAPIWith(t, gen)
}

func newAPIWith(t *testing.T, gen Generator) *httptest.Server {
	t.Helper()
	h := NewGenerateHandler(gen, nil, nil, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate_structured", h.HandleGenerate)
	mux.HandleFunc("POST /generate_structured_stream", h.HandleStream)
	mux.HandleFunc("GET /generate_structured_ws", h.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// eventBody 构造一个带 n 个上下文字段的请求体
func eventBody(stream bool, n int) string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = fmt.Sprintf(`"f%d":{"value":%d,"type":"number","description":"field %d"}`, i, i, i)
	}
	return fmt.Sprintf(`{
		"prompt":"Narrate what happens next.",
		"context":{%s},
		"pre_log_summary":{"summary":"The party rests.","recent_events":["camp made"]},
		"user_input":"open the door",
		"schema":{
			"event_description":{"type":"string","description":"What happened"},
			"context_changes":{"type":"object","description":"State updates"}
		},
		"stream":%t
	}`, strings.Join(fields, ","), stream)
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
