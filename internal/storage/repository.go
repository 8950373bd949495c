package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultLimit = 200
	maxLimit     = 5000
)

// ErrStaleSequence 表示提交的 Seq 不大于库中已存的 Seq：
// 要么是同一轮的重复提交，要么是乱序提交。调用方应放弃本次写入并重新读取状态。
var ErrStaleSequence = errors.New("stale conversation sequence")

// SaveConversation 以乐观序号检查写入会话快照。
// 首次写入直接插入；后续写入要求 rec.Seq 严格大于库中已存的 Seq。
func (s *Storage) SaveConversation(ctx context.Context, rec *ConversationRecord) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if rec == nil || rec.ID == "" {
		return errors.New("conversation id is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ConversationRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", rec.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("insert conversation: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("load conversation: %w", err)
		}

		if rec.Seq <= existing.Seq {
			return fmt.Errorf("%w: got seq=%d, stored seq=%d", ErrStaleSequence, rec.Seq, existing.Seq)
		}
		rec.CreatedAt = existing.CreatedAt
		if err := tx.Save(rec).Error; err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	})
}

// GetConversation 按 ID 读取会话快照；不存在时返回 (nil, nil)。
func (s *Storage) GetConversation(ctx context.Context, id string) (*ConversationRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var rec ConversationRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &rec, nil
}

type ConversationQuery struct {
	// ActiveOnly 只返回未终结（未 solved 且未 escalated）的会话。
	ActiveOnly bool
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
}

// ListConversations 按最近更新时间倒序返回会话快照。
func (s *Storage) ListConversations(ctx context.Context, q ConversationQuery) ([]ConversationRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	db := s.db.WithContext(ctx).Model(&ConversationRecord{})
	if q.ActiveOnly {
		db = db.Where("solved = ? AND escalated = ?", false, false)
	}
	db = db.Order("updated_at DESC").Limit(normalizeLimit(q.Limit))

	var out []ConversationRecord
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// DeleteConversation 删除会话快照及其轮次记录。
func (s *Storage) DeleteConversation(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&TurnRecord{}).Error; err != nil {
			return fmt.Errorf("delete turn records: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&ConversationRecord{}).Error; err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
}

func (s *Storage) InsertTurnRecord(ctx context.Context, rec *TurnRecord) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if rec == nil {
		return errors.New("turn record is nil")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert turn record: %w", err)
	}
	return nil
}

type TurnQuery struct {
	// ConversationID 可选，按会话过滤。
	ConversationID string
	// Decision 可选，按路由决定过滤（continue/end/escalate/closed）。
	Decision string
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	// Desc 按落库时间倒序返回（优先返回最新轮次）。
	Desc bool
}

func (s *Storage) QueryTurnRecords(ctx context.Context, q TurnQuery) ([]TurnRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	db := s.db.WithContext(ctx).Model(&TurnRecord{})
	if q.ConversationID != "" {
		db = db.Where("conversation_id = ?", q.ConversationID)
	}
	if q.Decision != "" {
		db = db.Where("decision = ?", q.Decision)
	}
	if q.Desc {
		db = db.Order("created_at DESC, id DESC")
	} else {
		db = db.Order("created_at ASC, id ASC")
	}
	db = db.Limit(normalizeLimit(q.Limit))

	var out []TurnRecord
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query turn records: %w", err)
	}
	return out, nil
}

func (s *Storage) CountTurnRecords(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&TurnRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count turn records: %w", err)
	}
	return count, nil
}

func (s *Storage) DeleteTurnRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&TurnRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete turn records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteTurnRecordsKeepLatest 只保留最近的 keep 条轮次记录，返回删除数量。
func (s *Storage) DeleteTurnRecordsKeepLatest(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	if keep <= 0 {
		return 0, errors.New("keep must be positive")
	}
	res := s.db.WithContext(ctx).Exec(
		"DELETE FROM turn_records WHERE id NOT IN (SELECT id FROM turn_records ORDER BY id DESC LIMIT ?)",
		keep,
	)
	if res.Error != nil {
		return 0, fmt.Errorf("delete turn records keep latest: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// InsertKnowledgeChunks 批量写入知识库片段。
func (s *Storage) InsertKnowledgeChunks(ctx context.Context, chunks []KnowledgeChunk) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range chunks {
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = now
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(chunks, 200).Error; err != nil {
		return fmt.Errorf("insert knowledge chunks: %w", err)
	}
	return nil
}

// ListKnowledgeChunks 按主键升序返回全部知识库片段（知识库规模小，全量读出）。
func (s *Storage) ListKnowledgeChunks(ctx context.Context) ([]KnowledgeChunk, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out []KnowledgeChunk
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list knowledge chunks: %w", err)
	}
	return out, nil
}

func (s *Storage) CountKnowledgeChunks(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&KnowledgeChunk{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count knowledge chunks: %w", err)
	}
	return count, nil
}

// DeleteKnowledgeChunksBySource 删除某篇文档的全部片段（重新导入前调用）。
// source 为不带 #序号 的来源标识。
func (s *Storage) DeleteKnowledgeChunksBySource(ctx context.Context, source string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).
		Where("source_id = ? OR source_id LIKE ?", source, source+"#%").
		Delete(&KnowledgeChunk{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete knowledge chunks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
