package agent

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/wizai/InstallWiz/internal/knowledge"
)

// InputNode 接收本轮用户输入并完成入图前的状态整备。
// 已终结的对话直接短路到 Responder，不再追加用户消息。
func InputNode(ctx context.Context, state ConversationState) (ConversationState, error) {
	// 每轮入图前清空上一轮的临时字段
	state.Retrieved = nil
	state.RetrievalDegraded = false
	state.Analysis = nil
	state.Decision = ""

	if state.Terminal() {
		state.Decision = DecisionClosed
		return state, nil
	}

	state.Messages = append(state.Messages, schema.UserMessage(state.UserQuery))
	return state, nil
}

// RetrieveNode 用最新用户消息加对话摘要做检索查询。
// 检索失败不会中断本轮：降级标记会让 Responder 提示用户文档暂不可用。
func RetrieveNode(ctx context.Context, state ConversationState, index knowledge.Index, topK int, logger *zap.Logger) (ConversationState, error) {
	query := state.LatestUserMessage()
	if summary := strings.TrimSpace(state.Summary); summary != "" {
		query = query + "\n" + summary
	}

	fragments, err := index.Search(ctx, query, topK)
	if err != nil {
		logger.Warn("knowledge search failed, continuing degraded",
			zap.String("trace_id", GetTraceID(ctx)), zap.Error(err))
		state.Retrieved = nil
		state.RetrievalDegraded = true
		return state, nil
	}

	state.Retrieved = fragments
	return state, nil
}
