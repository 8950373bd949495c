package storage

import "time"

// ConversationRecord 是一个会话的持久化快照，按调用方分配的会话 ID 存取。
//
// 引擎本身无状态：每轮把完整状态序列化进 StateJSON；几个高频筛选字段
// （是否终结、迭代次数等）冗余成列，便于 CLI 查询和清理。
type ConversationRecord struct {
	// ID 会话唯一标识（调用方分配，通常为 UUID）。
	ID string `gorm:"primaryKey;size:64"`
	// StateJSON 完整的 ConversationState 序列化结果（JSON 字符串）。
	StateJSON string `gorm:"type:text;not null"`
	// Summary 对话摘要（冗余列，便于列表展示）。
	Summary string `gorm:"type:text"`
	// InstallMethod/OS 已识别的安装方式与操作系统（冗余列）。
	InstallMethod string `gorm:"size:16;index"`
	OS            string `gorm:"size:16;index"`
	// IterationCount 无进展轮次计数（冗余列）。
	IterationCount int `gorm:"not null"`
	// Solved/Escalated 终态标志（冗余列），用于筛选活跃/已结束会话。
	Solved    bool `gorm:"not null;index"`
	Escalated bool `gorm:"not null;index"`
	// Seq 单调轮次序号；写入时要求严格大于已存值，用于拒绝重复/乱序提交。
	Seq int64 `gorm:"not null"`
	// CreatedAt/UpdatedAt 由 gorm 自动维护。
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime;index"`
}

// TurnRecord 记录一次完整的对话轮次（用户输入 + 引擎决策 + 助手回复），
// 用于审计、排障与后续分析。大字段直接存文本，不做结构化。
type TurnRecord struct {
	// ID 自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// ConversationID 所属会话；与 Seq 组成联合索引支持按会话回放。
	ConversationID string `gorm:"size:64;not null;index:idx_turns_conv_seq,priority:1"`
	// Seq 本轮的会话内序号。
	Seq int64 `gorm:"not null;index:idx_turns_conv_seq,priority:2"`
	// TraceID 串联一次调用链路（可选）。
	TraceID string `gorm:"size:64;index"`
	// Decision 本轮 Router 的路由决定（continue/end/escalate/closed）。
	Decision string `gorm:"size:16;not null;index"`
	// Degraded 本轮是否发生了检索降级（知识库不可用，回复未做 grounding）。
	Degraded bool `gorm:"not null"`
	// UserText/AssistantText 本轮的用户输入与助手回复。
	UserText      string `gorm:"type:text"`
	AssistantText string `gorm:"type:text"`
	// StartedAt/FinishedAt 本轮处理起止时间。
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	// CreatedAt 记录落库时间。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"`
}

// KnowledgeChunk 是知识库中的一个文档片段，由 kb import 命令写入，
// 检索层（internal/knowledge）全量读出后在内存打分。
type KnowledgeChunk struct {
	// ID 自增主键；同分片段的并列排序键，保证检索结果确定性。
	ID uint64 `gorm:"primaryKey"`
	// SourceID 片段来源标识（如 docs/installation/docker.md#2）。
	SourceID string `gorm:"size:255;not null;uniqueIndex"`
	// Title 片段所属小节标题。
	Title string `gorm:"size:255"`
	// Text 片段正文。
	Text string `gorm:"type:text;not null"`
	// CreatedAt 导入时间。
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}
