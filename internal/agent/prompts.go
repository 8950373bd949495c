package agent

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/wizai/InstallWiz/internal/knowledge"
)

// 提示词面向 Hummingbot 社区用户，保持英文；模板变量使用 FString 语法，
// 模板里的字面大括号（JSON 示例）需要写成 {{ }}。

// AnalysisPromptTemplate 是 Analyzer 的结构化分析提示词。
// 动态变量: {conversation}, {summary}, {installation_method}, {operating_system}
const AnalysisPromptTemplate = `You are analyzing a support conversation about installing Hummingbot.

CONVERSATION HISTORY:
{conversation}

CURRENT SUMMARY:
{summary}

Facts established so far: installation method = {installation_method}, operating system = {operating_system}.

Based on the conversation, provide:
1. An updated summary of the problem and progress. Keep it under 120 words; it fully replaces the old summary.
2. The resolution signal for the LATEST user message:
   - "solved": the user explicitly stated or clearly implied the problem is solved
   - "progressing": the conversation is moving forward (the user gave new information or is following the steps)
   - "stalled": the user reports a failure or expresses confusion, and no real progress was made this turn
3. The detected installation method (docker, source, or unknown).
4. The detected operating system (windows, macos, linux, or unknown).

Installation methods information:
- docker: the user installs via Docker containers
- source: the user installs from source code using Anaconda

Return ONLY a JSON object with exactly these keys, no markdown fences:
{{"summary": "...", "resolution": "solved|progressing|stalled", "installation_method": "docker|source|unknown", "operating_system": "windows|macos|linux|unknown"}}`

// GuidancePromptTemplate 是 continue 分支的回复提示词。
// 动态变量: {summary}, {conversation}, {documents}, {installation_method},
// {operating_system}, {rules}
const GuidancePromptTemplate = `You are a helpful assistant that helps Hummingbot users install and run the software.
Always provide the specific commands (like ` + "`docker compose up -d`" + `) in fenced code blocks if mentioned in the retrieved documents.

CONVERSATION SUMMARY:
{summary}

RECENT CONVERSATION:
{conversation}

RETRIEVED DOCUMENTS:
{documents}

INSTALLATION METHOD: {installation_method}
OPERATING SYSTEM: {operating_system}

{rules}

Answer the user's latest question. Be clear, step-by-step, and suggest the next step the user should take.`

// ClosingPromptTemplate 是 end 分支的收尾提示词。
// 动态变量: {summary}, {conversation}
const ClosingPromptTemplate = `You are a helpful assistant that helps Hummingbot users install and run the software.
The user's problem has been SOLVED.

CONVERSATION SUMMARY:
{summary}

RECENT CONVERSATION:
{conversation}

Express positivity about resolving the issue, briefly recap what was done, and offer one or two final tips or resources. Do not introduce new installation instructions.`

// NewAnalysisTemplate 创建 Analyzer 的 ChatTemplate 实例
func NewAnalysisTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString, schema.SystemMessage(AnalysisPromptTemplate))
}

// NewGuidanceTemplate 创建 continue 分支的 ChatTemplate 实例
func NewGuidanceTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString, schema.SystemMessage(GuidancePromptTemplate))
}

// NewClosingTemplate 创建 end 分支的 ChatTemplate 实例
func NewClosingTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString, schema.SystemMessage(ClosingPromptTemplate))
}

// recentConversationWindow 拼进提示词的最近消息条数上限。
// 更早的内容由 Summary 承载，避免每轮重新处理全量历史。
const recentConversationWindow = 5

// formatConversation 把最近 limit 条消息拼成 "User: .. / Assistant: .." 文本
func formatConversation(messages []*schema.Message, limit int) string {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	var b strings.Builder
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		role := "Assistant"
		if msg.Role == schema.User {
			role = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", role, msg.Content)
	}
	if b.Len() == 0 {
		return "(no messages)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatFragments 把检索片段拼成带来源标注的文档列表
func formatFragments(fragments []knowledge.Fragment) string {
	if len(fragments) == 0 {
		return "(no documents retrieved)"
	}
	var b strings.Builder
	for i, frag := range fragments {
		fmt.Fprintf(&b, "DOCUMENT %d (source: %s):\n%s\n\n", i+1, frag.SourceID, frag.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatSummary 摘要为空时给提示词一个明确的占位
func formatSummary(summary string) string {
	if strings.TrimSpace(summary) == "" {
		return "No summary available."
	}
	return summary
}
