package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/wizai/InstallWiz/internal/knowledge"
)

// ErrEmptyInput 表示用户输入为空白
var ErrEmptyInput = errors.New("agent: empty user input")

// Deps 是引擎的外部依赖。ChatModel 和 Index 必填，其余有默认值。
type Deps struct {
	ChatModel     model.BaseChatModel
	Index         knowledge.Index
	TopK          int
	EscalateAfter int
	Logger        *zap.Logger
}

func (d *Deps) setDefaults() {
	if d.TopK <= 0 {
		d.TopK = knowledge.DefaultTopK
	}
	if d.EscalateAfter <= 0 {
		d.EscalateAfter = DefaultEscalateAfter
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
}

// Engine 封装编译后的流程图，对外提供单轮处理入口
type Engine struct {
	runnable compose.Runnable[ConversationState, ConversationState]
	logger   *zap.Logger
}

// NewEngine 校验依赖并编译流程图
func NewEngine(ctx context.Context, deps Deps) (*Engine, error) {
	if deps.ChatModel == nil {
		return nil, errors.New("agent: chat model is required")
	}
	if deps.Index == nil {
		return nil, errors.New("agent: knowledge index is required")
	}
	deps.setDefaults()

	runnable, err := BuildGraph(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("build graph failed: %w", err)
	}

	return &Engine{runnable: runnable, logger: deps.Logger}, nil
}

// ProcessMessage 处理一轮用户输入，返回更新后的状态和本轮助手回复。
// 入参状态不会被修改：内部先深拷贝再执行，失败时调用方手里的状态保持原样。
func (e *Engine) ProcessMessage(ctx context.Context, state *ConversationState, userText string) (*ConversationState, string, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, "", ErrEmptyInput
	}

	if state == nil {
		fresh := NewConversationState()
		state = &fresh
	}
	if err := state.Validate(); err != nil {
		return nil, "", err
	}

	work := state.Clone()
	work.UserQuery = userText

	result, err := e.runnable.Invoke(ctx, work)
	if err != nil {
		return nil, "", fmt.Errorf("process message failed: %w", err)
	}

	// 回复恒为最后一条 assistant 消息
	reply := ""
	if n := len(result.Messages); n > 0 {
		reply = result.Messages[n-1].Content
	}

	// 临时字段不跨轮保留
	result.UserQuery = ""

	return &result, reply, nil
}
