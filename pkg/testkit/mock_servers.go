package testkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
)

// MockAnthropicServer creates an httptest server that emulates the
// Anthropic Messages API, returning responseText for every request.
func MockAnthropicServer(responseText string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		response := map[string]any{
			"id":    "msg_mock_12345",
			"type":  "message",
			"role":  "assistant",
			"model": request.Model,
			"content": []map[string]any{
				{"type": "text", "text": responseText},
			},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage": map[string]any{
				"input_tokens":  100,
				"output_tokens": 200,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
}

// MockOpenAIStreamServer emulates an OpenAI-compatible chat completions
// endpoint in streaming mode, emitting reasoning deltas followed by the
// content split across chunks.
func MockOpenAIStreamServer(reasoning, content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")

		writeChunk := func(delta map[string]any) {
			chunk := map[string]any{
				"id":      "chatcmpl-mock",
				"object":  "chat.completion.chunk",
				"model":   "mock-model",
				"choices": []map[string]any{{"index": 0, "delta": delta}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}

		if reasoning != "" {
			writeChunk(map[string]any{"reasoning_content": reasoning})
		}
		// Split content to exercise accumulation across deltas.
		half := len(content) / 2
		writeChunk(map[string]any{"content": content[:half]})
		writeChunk(map[string]any{"content": content[half:]})
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

// MockSearchAPIServer emulates the SearchAPI.io Google Maps engine,
// returning the provided local results for every query.
func MockSearchAPIServer(localResults []map[string]any) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") == "" {
			http.Error(w, `{"error": "missing api_key"}`, http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("engine") != "google_maps" {
			http.Error(w, `{"error": "unknown engine"}`, http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"local_results": localResults,
		})
	}))
}
