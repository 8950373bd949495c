package agent

import (
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/wizai/InstallWiz/internal/knowledge"
)

// InstallMethod 用户选择的安装方式
type InstallMethod string

const (
	MethodUnknown InstallMethod = "unknown"
	MethodDocker  InstallMethod = "docker"
	MethodSource  InstallMethod = "source"
)

// UserOS 用户的操作系统
type UserOS string

const (
	OSUnknown UserOS = "unknown"
	OSWindows UserOS = "windows"
	OSMacOS   UserOS = "macos"
	OSLinux   UserOS = "linux"
)

// Decision 是 Router 对本轮对话的路由决定
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionEnd      Decision = "end"
	DecisionEscalate Decision = "escalate"
	// DecisionClosed 表示入参状态已经终结（solved/escalated），本轮只回一条固定的收尾消息
	DecisionClosed Decision = "closed"
)

// Resolution 是 Analyzer 对最新一轮用户消息的解决状态判断
type Resolution string

const (
	// ResolutionSolved 用户明确表示问题已解决
	ResolutionSolved Resolution = "solved"
	// ResolutionProgressing 对话在推进（提供了新信息、按指引操作中）
	ResolutionProgressing Resolution = "progressing"
	// ResolutionStalled 用户报告失败/表达困惑，本轮没有实质进展
	ResolutionStalled Resolution = "stalled"
)

// TurnAnalysis 是 Analyzer 产出的结构化分析结果。
// Analyzer 只提出候选（尤其是 Resolution），是否终结对话由 Router 统一裁决。
type TurnAnalysis struct {
	Summary    string        `json:"summary"`
	Resolution Resolution    `json:"resolution"`
	Method     InstallMethod `json:"installation_method"`
	OS         UserOS        `json:"operating_system"`
}

// ErrMalformedState 表示调用方传入的状态违反了不变量，属于硬失败：
// 不存在安全的默认修复方式，引擎在做任何修改之前直接拒绝本次调用。
var ErrMalformedState = errors.New("malformed conversation state")

// ConversationState 定义了在 Graph 中流转的对话状态。
// 持久化字段全部是可平铺序列化的（JSON），由调用方按会话 ID 存取；
// json:"-" 的字段为本轮临时数据，每次调用重新计算，不跨调用保留。
type ConversationState struct {
	// 历史对话消息（User / Assistant），只追加，顺序即轮次顺序
	Messages []*schema.Message `json:"messages"`

	// 对话到目前为止的压缩摘要，每轮整体替换（不增量拼接，避免漂移）
	Summary string `json:"summary"`

	// 已识别的安装方式 / 操作系统；一旦确定，只有用户明确改口才会被覆盖
	InstallMethod InstallMethod `json:"installation_method"`
	OS            UserOS        `json:"operating_system"`

	// IterationCount 统计“无实质进展”的用户轮次，只增不减；
	// 达到上限后 Router 会把对话转交人工支持
	IterationCount int `json:"iteration_count"`

	// 终态标志，互斥；任意一个为 true 后引擎不再生成新的指导内容
	Solved    bool `json:"solved"`
	Escalated bool `json:"escalated"`

	// Seq 是调用方维护的单调轮次序号，用于持久层拒绝重复/乱序提交
	Seq int64 `json:"seq"`

	// ---- 以下为本轮临时字段 ----

	// 用户最新输入，由入口写入，InputNode 负责追加到 Messages
	UserQuery string `json:"-"`

	// 本轮检索到的文档片段（派生数据，不持久化）
	Retrieved []knowledge.Fragment `json:"-"`
	// 检索降级：知识库索引不可用时为 true，本轮回复不做文档 grounding
	RetrievalDegraded bool `json:"-"`

	// Analyzer 的结构化分析结果
	Analysis *TurnAnalysis `json:"-"`
	// Router 的路由决定
	Decision Decision `json:"-"`
}

// NewConversationState 创建一个全新的对话状态
func NewConversationState() ConversationState {
	return ConversationState{
		InstallMethod: MethodUnknown,
		OS:            OSUnknown,
	}
}

// Validate 检查状态是否满足基本不变量。
// 违反时返回 ErrMalformedState（包装具体原因），调用方不应继续处理。
func (s *ConversationState) Validate() error {
	if s.IterationCount < 0 {
		return fmt.Errorf("%w: iteration_count=%d", ErrMalformedState, s.IterationCount)
	}
	if s.Solved && s.Escalated {
		return fmt.Errorf("%w: solved and escalated are both set", ErrMalformedState)
	}
	if s.Seq < 0 {
		return fmt.Errorf("%w: seq=%d", ErrMalformedState, s.Seq)
	}
	for i, msg := range s.Messages {
		if msg == nil {
			return fmt.Errorf("%w: messages[%d] is nil", ErrMalformedState, i)
		}
	}
	return nil
}

// Terminal 对话是否已经终结
func (s *ConversationState) Terminal() bool {
	return s.Solved || s.Escalated
}

// RequiresWSL 派生事实：Windows 上从源码安装需要 WSL（Windows Subsystem for Linux），
// macOS/Linux 没有这个额外依赖
func (s *ConversationState) RequiresWSL() bool {
	return s.InstallMethod == MethodSource && s.OS == OSWindows
}

// LatestUserMessage 返回最近一条用户消息的内容；没有用户消息时返回空串
func (s *ConversationState) LatestUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i] != nil && s.Messages[i].Role == schema.User {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Clone 返回状态的深拷贝（消息切片重新分配）。
// 引擎在执行 Graph 前先 Clone，保证失败/取消的轮次不会污染调用方的状态。
func (s *ConversationState) Clone() ConversationState {
	clone := *s
	if s.Messages != nil {
		clone.Messages = make([]*schema.Message, len(s.Messages))
		copy(clone.Messages, s.Messages)
	}
	if s.Retrieved != nil {
		clone.Retrieved = make([]knowledge.Fragment, len(s.Retrieved))
		copy(clone.Retrieved, s.Retrieved)
	}
	if s.Analysis != nil {
		a := *s.Analysis
		clone.Analysis = &a
	}
	return clone
}
