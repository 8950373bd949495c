package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/wizai/InstallWiz/internal/knowledge"
)

// maxSummaryRunes 摘要长度上限（防御性截断，正常情况下提示词已约束模型输出长度）
const maxSummaryRunes = 1200

// 安装方式 / 操作系统的关键词表。
// 词元匹配（小写、按非字母数字切分），避免 "machine" 误中 "mac" 之类的子串问题。
var (
	dockerKeywords = []string{"docker", "container", "containers", "compose", "dockerfile"}
	sourceKeywords = []string{"source", "compile", "compiling", "clone", "anaconda", "conda"}

	windowsKeywords = []string{"windows", "win10", "win11", "wsl", "powershell"}
	macosKeywords   = []string{"mac", "macos", "macbook", "osx", "homebrew", "brew"}
	linuxKeywords   = []string{"linux", "ubuntu", "debian", "centos", "fedora"}
)

// DetectMethod 在一条用户消息里找显式的安装方式信号。
// 同一条消息里两种方式都被提到时视为含糊，不算显式信号（交给 LLM 分析兜底）。
func DetectMethod(text string) InstallMethod {
	tokens := tokenSet(text)
	docker := hasAny(tokens, dockerKeywords)
	source := hasAny(tokens, sourceKeywords)
	switch {
	case docker && !source:
		return MethodDocker
	case source && !docker:
		return MethodSource
	default:
		return MethodUnknown
	}
}

// DetectOS 在一条用户消息里找显式的操作系统信号。
// 提到 WSL 本身就意味着 Windows。多个系统同时出现视为含糊。
func DetectOS(text string) UserOS {
	tokens := tokenSet(text)
	var hits []UserOS
	if hasAny(tokens, windowsKeywords) {
		hits = append(hits, OSWindows)
	}
	if hasAny(tokens, macosKeywords) {
		hits = append(hits, OSMacOS)
	}
	if hasAny(tokens, linuxKeywords) {
		hits = append(hits, OSLinux)
	}
	if len(hits) == 1 {
		return hits[0]
	}
	return OSUnknown
}

func tokenSet(text string) map[string]bool {
	tokens := knowledge.Tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func hasAny(tokens map[string]bool, keywords []string) bool {
	for _, k := range keywords {
		if tokens[k] {
			return true
		}
	}
	return false
}

// AnalyzeNode 更新对话的结构化理解，固定优先级：
//  1. 最新用户消息里的显式安装方式信号（用户改口优先于历史）
//  2. 显式操作系统信号，同样的覆盖纪律
//  3. LLM 结构化分析：整体重写摘要、给出本轮 resolution 候选；
//     对本轮没有显式信号、且整个会话还未确定的字段，允许用 LLM 的推断补上
//  4. 本轮无实质进展（stalled）时 IterationCount+1
//
// 是否终结对话由 Router 决定，这里只提出候选。
func AnalyzeNode(ctx context.Context, state ConversationState, cm model.BaseChatModel, logger *zap.Logger) (ConversationState, error) {
	latest := state.LatestUserMessage()

	// 1/2. 显式信号直接覆盖
	explicitMethod := DetectMethod(latest)
	if explicitMethod != MethodUnknown {
		state.InstallMethod = explicitMethod
	}
	explicitOS := DetectOS(latest)
	if explicitOS != OSUnknown {
		state.OS = explicitOS
	}

	// 3. LLM 结构化分析
	analysis, err := runAnalysis(ctx, state, cm)
	if err != nil {
		// 分析降级：保留旧摘要、只用关键词信号。本轮对用户没有产出实质推进，
		// 按 stalled 计数，避免连续失败的对话永远接近不了人工介入。
		logger.Warn("conversation analysis degraded",
			zap.String("trace_id", GetTraceID(ctx)), zap.Error(err))
		analysis = &TurnAnalysis{
			Summary:    state.Summary,
			Resolution: ResolutionStalled,
			Method:     MethodUnknown,
			OS:         OSUnknown,
		}
	}

	// LLM 只允许补全本轮没有显式信号、且会话里尚未确定的字段
	if explicitMethod == MethodUnknown && state.InstallMethod == MethodUnknown && analysis.Method != MethodUnknown {
		state.InstallMethod = analysis.Method
	}
	if explicitOS == OSUnknown && state.OS == OSUnknown && analysis.OS != OSUnknown {
		state.OS = analysis.OS
	}

	if strings.TrimSpace(analysis.Summary) != "" {
		state.Summary = truncateRunes(analysis.Summary, maxSummaryRunes)
	}
	state.Analysis = analysis

	// 4. 无进展轮次计数；解决当轮和正常推进的轮次不计数
	if analysis.Resolution == ResolutionStalled {
		state.IterationCount++
	}

	return state, nil
}

// runAnalysis 调用 LLM 做结构化分析，失败重试一次。
func runAnalysis(ctx context.Context, state ConversationState, cm model.BaseChatModel) (*TurnAnalysis, error) {
	template := NewAnalysisTemplate()
	messages, err := template.Format(ctx, map[string]any{
		"conversation":        formatConversation(state.Messages, 0),
		"summary":             formatSummary(state.Summary),
		"installation_method": string(state.InstallMethod),
		"operating_system":    string(state.OS),
	})
	if err != nil {
		return nil, fmt.Errorf("format analysis template failed: %w", err)
	}

	aiMsg, err := cm.Generate(ctx, messages)
	if err != nil {
		aiMsg, err = cm.Generate(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("analysis generate failed: %w", err)
	}

	analysis, err := parseAnalysis(aiMsg.Content)
	if err != nil {
		return nil, fmt.Errorf("parse analysis output failed: %w", err)
	}
	return analysis, nil
}

// parseAnalysis 解析模型输出的 JSON。模型偶尔会包一层 markdown 代码块，
// 这里取第一个 { 到最后一个 } 之间的内容解析。
func parseAnalysis(raw string) (*TurnAnalysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in output: %q", truncateRunes(raw, 200))
	}

	var analysis TurnAnalysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}

	analysis.Resolution = normalizeResolution(analysis.Resolution)
	analysis.Method = normalizeMethod(analysis.Method)
	analysis.OS = normalizeOS(analysis.OS)
	return &analysis, nil
}

func normalizeResolution(r Resolution) Resolution {
	switch Resolution(strings.ToLower(strings.TrimSpace(string(r)))) {
	case ResolutionSolved:
		return ResolutionSolved
	case ResolutionStalled:
		return ResolutionStalled
	default:
		return ResolutionProgressing
	}
}

func normalizeMethod(m InstallMethod) InstallMethod {
	switch InstallMethod(strings.ToLower(strings.TrimSpace(string(m)))) {
	case MethodDocker:
		return MethodDocker
	case MethodSource:
		return MethodSource
	default:
		return MethodUnknown
	}
}

func normalizeOS(o UserOS) UserOS {
	switch UserOS(strings.ToLower(strings.TrimSpace(string(o)))) {
	case OSWindows:
		return OSWindows
	case OSMacOS:
		return OSMacOS
	case OSLinux:
		return OSLinux
	default:
		return OSUnknown
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
