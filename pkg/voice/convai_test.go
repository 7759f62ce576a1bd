package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	played [][]byte
	clears int
}

func (s *recordingSink) Play(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, pcm)
}

func (s *recordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

type chunkSource struct {
	chunks [][]byte
	next   int
}

func (s *chunkSource) Read() ([]byte, error) {
	if s.next >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.next]
	s.next++
	return c, nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSessionHandlesConversationEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	clientMsgs := make(chan map[string]any, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "agent-42", r.URL.Query().Get("agent_id"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Collect everything the client sends so the test can assert
		// on pongs and tool results after the session ends.
		go func() {
			for {
				var msg map[string]any
				if err := conn.ReadJSON(&msg); err != nil {
					close(clientMsgs)
					return
				}
				clientMsgs <- msg
			}
		}()

		events := []map[string]any{
			{
				"type": "conversation_initiation_metadata",
				"conversation_initiation_metadata_event": map[string]any{
					"conversation_id":           "conv-123",
					"agent_output_audio_format": "pcm_16000",
				},
			},
			{
				"type": "audio",
				"audio_event": map[string]any{
					"audio_base_64": base64.StdEncoding.EncodeToString([]byte("pcm-chunk")),
				},
			},
			{
				"type": "agent_response",
				"agent_response_event": map[string]any{
					"agent_response": "I can offer two hundred.",
				},
			},
			{
				"type": "user_transcript",
				"user_transcription_event": map[string]any{
					"user_transcript": "Would you take two fifty?",
				},
			},
			{"type": "interruption"},
			{"type": "ping", "ping_event": map[string]any{"event_id": 7}},
			{"type": "client_tool_call", "client_tool_call": map[string]any{"tool_call_id": "tc-1"}},
		}
		for _, ev := range events {
			require.NoError(t, conn.WriteJSON(ev))
		}

		// Give the client a moment to answer the ping and tool call
		// before the close frame lands.
		time.Sleep(100 * time.Millisecond)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	var agentLines, userLines []string

	sess, err := Dial(context.Background(), SessionConfig{
		APIKey:           "secret-key",
		AgentID:          "agent-42",
		BaseURL:          wsURL(srv),
		DynamicVariables: map[string]any{"store_name": "EZ Pawn"},
		Sink:             sink,
		OnAgentResponse:  func(text string) { agentLines = append(agentLines, text) },
		OnUserTranscript: func(text string) { userLines = append(userLines, text) },
	})
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Run(ctx))

	assert.Equal(t, "conv-123", sess.ConversationID())
	assert.Equal(t, []string{"I can offer two hundred."}, agentLines)
	assert.Equal(t, []string{"Would you take two fifty?"}, userLines)

	sink.mu.Lock()
	require.Len(t, sink.played, 1)
	assert.Equal(t, []byte("pcm-chunk"), sink.played[0])
	assert.Equal(t, 1, sink.clears)
	sink.mu.Unlock()

	var sawInit, sawPong, sawToolResult bool
	for msg := range clientMsgs {
		switch msg["type"] {
		case "conversation_initiation_client_data":
			sawInit = true
			vars, ok := msg["dynamic_variables"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "EZ Pawn", vars["store_name"])
		case "pong":
			sawPong = true
			assert.Equal(t, float64(7), msg["event_id"])
		case "client_tool_result":
			sawToolResult = true
			assert.Equal(t, "tc-1", msg["tool_call_id"])
			assert.Equal(t, "{}", msg["result"])
			assert.Equal(t, false, msg["is_error"])
		}
	}
	assert.True(t, sawInit)
	assert.True(t, sawPong)
	assert.True(t, sawToolResult)
}

func TestSessionStreamsSourceAudio(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for i := 0; i < 2; i++ {
			var msg struct {
				UserAudioChunk string `json:"user_audio_chunk"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			pcm, err := base64.StdEncoding.DecodeString(msg.UserAudioChunk)
			require.NoError(t, err)
			received <- pcm
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	source := &chunkSource{chunks: [][]byte{[]byte("chunk-one"), []byte("chunk-two")}}
	sess, err := Dial(context.Background(), SessionConfig{
		APIKey:  "secret-key",
		AgentID: "agent-42",
		BaseURL: wsURL(srv),
		Source:  source,
	})
	require.NoError(t, err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Run(ctx))

	assert.Equal(t, []byte("chunk-one"), <-received)
	assert.Equal(t, []byte("chunk-two"), <-received)
}

func TestDialRequiresCredentials(t *testing.T) {
	_, err := Dial(context.Background(), SessionConfig{AgentID: "agent-42"})
	require.Error(t, err)

	_, err = Dial(context.Background(), SessionConfig{APIKey: "secret-key"})
	require.Error(t, err)
}

func TestDialSurfacesHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), SessionConfig{
		APIKey:  "bad-key",
		AgentID: "agent-42",
		BaseURL: wsURL(srv),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, websocket.ErrBadHandshake) || strings.Contains(err.Error(), "401"))
}
