package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"appraisal/pkg/logx"
)

// DefaultConvAIURL is the ElevenLabs conversational-AI websocket endpoint.
const DefaultConvAIURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// AudioSink receives agent speech as 16 kHz 16-bit PCM chunks.
type AudioSink interface {
	Play(pcm []byte)
	// Clear drops any queued audio. Called when the caller interrupts the
	// agent mid-sentence.
	Clear()
}

// AudioSource supplies caller audio. Read blocks until the next PCM chunk
// is available and returns an error when the source is exhausted.
type AudioSource interface {
	Read() ([]byte, error)
}

// SessionConfig configures one ConvAI conversation.
type SessionConfig struct {
	APIKey  string
	AgentID string
	// BaseURL overrides DefaultConvAIURL, mainly for tests.
	BaseURL string

	// DynamicVariables are injected into the agent's prompt templates at
	// conversation start: item name, price bounds, the shop being called.
	DynamicVariables map[string]any

	// Source may be nil for a receive-only session.
	Source AudioSource
	Sink   AudioSink

	OnAgentResponse  func(text string)
	OnUserTranscript func(text string)
}

// serverEvent is the envelope for every message the ConvAI server sends.
// Only the branch matching Type is populated.
type serverEvent struct {
	Type string `json:"type"`

	InitiationMetadata struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
	} `json:"conversation_initiation_metadata_event"`

	AudioEvent struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event"`

	AgentResponseEvent struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`

	UserTranscriptionEvent struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`

	PingEvent struct {
		EventID int `json:"event_id"`
	} `json:"ping_event"`

	ClientToolCall struct {
		ToolCallID string `json:"tool_call_id"`
	} `json:"client_tool_call"`
}

// Session is a live ConvAI conversation over a websocket.
type Session struct {
	cfg    SessionConfig
	conn   *websocket.Conn
	logger *logx.Logger

	writeMu sync.Mutex

	convID string
}

// Dial opens the websocket and sends the initiation payload. The caller
// must invoke Run to start the conversation and Close when done.
func Dial(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("voice session requires an ElevenLabs API key")
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("voice session requires an ElevenLabs agent ID")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultConvAIURL
	}
	url := fmt.Sprintf("%s?agent_id=%s", base, cfg.AgentID)

	header := http.Header{"xi-api-key": []string{cfg.APIKey}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connecting to ConvAI (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connecting to ConvAI: %w", err)
	}

	s := &Session{
		cfg:    cfg,
		conn:   conn,
		logger: logx.NewLogger("convai"),
	}
	if len(cfg.DynamicVariables) > 0 {
		err := s.writeJSON(map[string]any{
			"type":              "conversation_initiation_client_data",
			"dynamic_variables": cfg.DynamicVariables,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("sending initiation data: %w", err)
		}
	}
	return s, nil
}

// ConversationID is empty until the server's initiation metadata arrives.
func (s *Session) ConversationID() string {
	return s.convID
}

func (s *Session) Close() error {
	return s.conn.Close() //nolint:wrapcheck
}

// Run pumps audio both ways until the connection closes, the source is
// exhausted, or ctx is canceled. A normal server-side close returns nil.
func (s *Session) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.sendLoop(ctx) }()
	go func() { errCh <- s.receiveLoop() }()

	select {
	case <-ctx.Done():
		s.conn.Close()
		<-errCh
		return fmt.Errorf("voice session interrupted: %w", ctx.Err())
	case err := <-errCh:
		s.conn.Close()
		return err
	}
}

func (s *Session) sendLoop(ctx context.Context) error {
	if s.cfg.Source == nil {
		<-ctx.Done()
		return nil
	}
	for {
		chunk, err := s.cfg.Source.Read()
		if err != nil {
			// Source exhausted. The receive loop keeps draining agent audio.
			return nil
		}
		err = s.writeJSON(map[string]any{
			"user_audio_chunk": base64.StdEncoding.EncodeToString(chunk),
		})
		if err != nil {
			return err
		}
	}
}

func (s *Session) receiveLoop() error {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading ConvAI event: %w", err)
		}

		var ev serverEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn("unparseable ConvAI event: %v", err)
			continue
		}
		if err := s.handleEvent(&ev); err != nil {
			return err
		}
	}
}

func (s *Session) handleEvent(ev *serverEvent) error {
	switch ev.Type {
	case "conversation_initiation_metadata":
		s.convID = ev.InitiationMetadata.ConversationID
		s.logger.Info("session %s started, audio format %s",
			s.convID, ev.InitiationMetadata.AgentOutputAudioFormat)

	case "audio":
		if ev.AudioEvent.AudioBase64 == "" || s.cfg.Sink == nil {
			return nil
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.AudioEvent.AudioBase64)
		if err != nil {
			s.logger.Warn("bad audio payload: %v", err)
			return nil
		}
		s.cfg.Sink.Play(pcm)

	case "agent_response":
		if text := ev.AgentResponseEvent.AgentResponse; text != "" && s.cfg.OnAgentResponse != nil {
			s.cfg.OnAgentResponse(text)
		}

	case "user_transcript":
		if text := ev.UserTranscriptionEvent.UserTranscript; text != "" && s.cfg.OnUserTranscript != nil {
			s.cfg.OnUserTranscript(text)
		}

	case "interruption":
		if s.cfg.Sink != nil {
			s.cfg.Sink.Clear()
		}

	case "ping":
		return s.writeJSON(map[string]any{
			"type":     "pong",
			"event_id": ev.PingEvent.EventID,
		})

	case "client_tool_call":
		// No client tools are registered; acknowledge so the agent
		// does not stall waiting on a result.
		return s.writeJSON(map[string]any{
			"type":         "client_tool_result",
			"tool_call_id": ev.ClientToolCall.ToolCallID,
			"result":       "{}",
			"is_error":     false,
		})
	}
	return nil
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("writing ConvAI message: %w", err)
	}
	return nil
}
