package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wizai/InstallWiz/internal/agent"
	"github.com/wizai/InstallWiz/internal/storage"
)

// Session 把单个会话的状态流转和持久化绑在一起：
// 每轮调用引擎处理用户输入，成功后自增 Seq、落库会话快照和轮次记录。
// store 为 nil 时会话只存在于内存中（临时对话模式）。
type Session struct {
	engine *agent.Engine
	store  *storage.Storage
	logger *zap.Logger

	id    string
	state *agent.ConversationState
}

// Open 打开（或恢复）一个会话。
// id 为空时分配新的 UUID；store 非空且库中已有该会话时，从快照恢复状态。
func Open(ctx context.Context, engine *agent.Engine, store *storage.Storage, id string, logger *zap.Logger) (*Session, error) {
	if engine == nil {
		return nil, fmt.Errorf("session: engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if id == "" {
		id = uuid.New().String()
	}

	s := &Session{
		engine: engine,
		store:  store,
		logger: logger,
		id:     id,
	}

	if store != nil {
		rec, err := store.GetConversation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load conversation %s: %w", id, err)
		}
		if rec != nil {
			state, err := decodeState(rec.StateJSON)
			if err != nil {
				return nil, fmt.Errorf("decode conversation %s: %w", id, err)
			}
			s.state = state
		}
	}
	if s.state == nil {
		fresh := agent.NewConversationState()
		s.state = &fresh
	}

	return s, nil
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// State 当前会话状态（调用方只读）
func (s *Session) State() *agent.ConversationState { return s.state }

// Send 处理一轮用户输入并返回助手回复。
// 持久化失败不回滚本轮：对话优先，落库问题记日志后继续。
func (s *Session) Send(ctx context.Context, userText string) (string, error) {
	traceID := uuid.New().String()
	ctx = agent.WithTraceID(ctx, traceID)

	started := time.Now().UTC()
	next, reply, err := s.engine.ProcessMessage(ctx, s.state, userText)
	if err != nil {
		return "", err
	}
	finished := time.Now().UTC()

	next.Seq = s.state.Seq + 1
	s.state = next

	if s.store != nil {
		if err := s.persist(ctx, traceID, userText, reply, started, finished); err != nil {
			s.logger.Warn("persist turn failed",
				zap.String("conversation_id", s.id),
				zap.String("trace_id", traceID),
				zap.Error(err))
		}
	}

	return reply, nil
}

func (s *Session) persist(ctx context.Context, traceID, userText, reply string, started, finished time.Time) error {
	stateJSON, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	rec := storage.ConversationRecord{
		ID:             s.id,
		StateJSON:      string(stateJSON),
		Summary:        s.state.Summary,
		InstallMethod:  string(s.state.InstallMethod),
		OS:             string(s.state.OS),
		IterationCount: s.state.IterationCount,
		Solved:         s.state.Solved,
		Escalated:      s.state.Escalated,
		Seq:            s.state.Seq,
	}
	if err := s.store.SaveConversation(ctx, &rec); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	turn := storage.TurnRecord{
		ConversationID: s.id,
		Seq:            s.state.Seq,
		TraceID:        traceID,
		Decision:       string(s.state.Decision),
		Degraded:       s.state.RetrievalDegraded,
		UserText:       userText,
		AssistantText:  reply,
		StartedAt:      started,
		FinishedAt:     finished,
	}
	if err := s.store.InsertTurnRecord(ctx, &turn); err != nil {
		return fmt.Errorf("insert turn record: %w", err)
	}
	return nil
}

func decodeState(stateJSON string) (*agent.ConversationState, error) {
	var state agent.ConversationState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, err
	}
	if state.InstallMethod == "" {
		state.InstallMethod = agent.MethodUnknown
	}
	if state.OS == "" {
		state.OS = agent.OSUnknown
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}
