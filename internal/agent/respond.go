package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ClosedNotice 是已终结对话再次收到消息时的固定回复
const ClosedNotice = "This conversation has already been closed. If you run into a new problem, please start a new conversation."

// generationFallback 是生成连续失败两次后的固定兜底回复
const generationFallback = "Sorry, I'm having trouble generating a reply right now. Please try again in a moment, and include your operating system and whether you're installing via Docker or from source."

// RespondNode 按 Router 的决定生成助手回复并追加到消息列表。
// 除已终结入参的空转外，每次调用保证恰好追加一条 assistant 消息。
func RespondNode(ctx context.Context, state ConversationState, cm model.BaseChatModel, logger *zap.Logger) (ConversationState, error) {
	var reply string
	switch state.Decision {
	case DecisionClosed:
		// 空转轮次：不调模型，只回固定收尾消息
		reply = ClosedNotice
	case DecisionEscalate:
		// 升级通知是固定格式的，不走模型生成，保证不会编造新的安装指令
		reply = escalationNotice(state)
	case DecisionEnd:
		reply = generateReply(ctx, state, cm, logger, buildClosingMessages)
	default:
		reply = generateReply(ctx, state, cm, logger, buildGuidanceMessages)
	}

	state.Messages = append(state.Messages, schema.AssistantMessage(reply, nil))
	return state, nil
}

// generateReply 调模型生成回复，失败重试一次，再失败回固定兜底文案。
// 生成失败不会让整轮失败：用户总能拿到一条可见回复。
func generateReply(ctx context.Context, state ConversationState, cm model.BaseChatModel, logger *zap.Logger, build func(context.Context, ConversationState) ([]*schema.Message, error)) string {
	messages, err := build(ctx, state)
	if err != nil {
		logger.Warn("build response prompt failed", zap.Error(err))
		return generationFallback
	}

	aiMsg, err := cm.Generate(ctx, messages)
	if err != nil {
		logger.Warn("response generate failed, retrying once", zap.Error(err))
		aiMsg, err = cm.Generate(ctx, messages)
	}
	if err != nil {
		logger.Warn("response generate failed twice, using fallback",
			zap.String("trace_id", GetTraceID(ctx)), zap.Error(err))
		return generationFallback
	}
	if strings.TrimSpace(aiMsg.Content) == "" {
		return generationFallback
	}
	return aiMsg.Content
}

// buildGuidanceMessages 组装 continue 分支的提示词
func buildGuidanceMessages(ctx context.Context, state ConversationState) ([]*schema.Message, error) {
	return NewGuidanceTemplate().Format(ctx, map[string]any{
		"summary":             formatSummary(state.Summary),
		"conversation":        formatConversation(state.Messages, recentConversationWindow),
		"documents":           formatFragments(state.Retrieved),
		"installation_method": string(state.InstallMethod),
		"operating_system":    string(state.OS),
		"rules":               guidanceRules(state),
	})
}

// buildClosingMessages 组装 end 分支的提示词
func buildClosingMessages(ctx context.Context, state ConversationState) ([]*schema.Message, error) {
	return NewClosingTemplate().Format(ctx, map[string]any{
		"summary":      formatSummary(state.Summary),
		"conversation": formatConversation(state.Messages, recentConversationWindow),
	})
}

// guidanceRules 根据当前状态拼出本轮的硬性规则。
// 未确定安装方式/操作系统时必须先澄清，这是防幻觉的主要闸门：
// Responder 永远不替用户假设一个未确定的维度。
func guidanceRules(state ConversationState) string {
	var rules []string

	var unknowns []string
	if state.InstallMethod == MethodUnknown {
		unknowns = append(unknowns, "installation method (Docker or from source)")
	}
	if state.OS == OSUnknown {
		unknowns = append(unknowns, "operating system (Windows, macOS or Linux)")
	}
	if len(unknowns) > 0 {
		rules = append(rules, fmt.Sprintf(
			"IMPORTANT: the user's %s is still unknown. Ask a clarifying question about it instead of guessing. Do not give concrete installation steps for a dimension you don't know.",
			strings.Join(unknowns, " and ")))
	}

	if state.RequiresWSL() {
		rules = append(rules, "PREREQUISITE: the user installs from source on Windows, which requires WSL (Windows Subsystem for Linux). Make sure WSL is set up before any other step.")
	}

	if state.RetrievalDegraded {
		rules = append(rules, "NOTE: document retrieval is temporarily unavailable. Give your best general guidance and point the user to https://hummingbot.org/installation/ for details.")
	}

	if len(rules) == 0 {
		return "Ground your answer in the retrieved documents. If they don't cover the question, say so and give your best guidance."
	}
	return strings.Join(rules, "\n")
}

// escalationNotice 固定格式的升级通知：说明卡住了、请人工跟进，并附上当前进展摘要。
// 不包含任何新的安装指令。
func escalationNotice(state ConversationState) string {
	var b strings.Builder
	b.WriteString("I'm sorry this is taking so long. We've gone through several rounds without solving it, so I'm handing this over to the support team. @support-team please follow up here.\n\n")
	b.WriteString("Status so far:\n")
	fmt.Fprintf(&b, "- Installation method: %s\n", state.InstallMethod)
	fmt.Fprintf(&b, "- Operating system: %s\n", state.OS)
	if strings.TrimSpace(state.Summary) != "" {
		fmt.Fprintf(&b, "- Summary: %s\n", state.Summary)
	}
	b.WriteString("\nA human will pick this up as soon as possible. Thanks for your patience!")
	return b.String()
}
