package ui

import (
	"context"

	"github.com/wizai/InstallWiz/internal/agent"
)

// ChatBackend 是界面层消费的会话后端：一轮输入换一条回复。
// internal/session.Session 是标准实现。
type ChatBackend interface {
	ID() string
	Send(ctx context.Context, text string) (string, error)
	State() *agent.ConversationState
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend) error
}
