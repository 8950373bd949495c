package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "installwiz.db")
	s, err := Open(ctx, Config{
		Path:      dbPath,
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConversationSaveAndSequenceCheck(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := ConversationRecord{
		ID:            "conv-1",
		StateJSON:     `{"messages":[]}`,
		Summary:       "user wants docker install",
		InstallMethod: "docker",
		OS:            "linux",
		Seq:           1,
	}
	if err := s.SaveConversation(ctx, &rec); err != nil {
		t.Fatalf("save initial: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got == nil || got.Summary != "user wants docker install" || got.Seq != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}
	created := got.CreatedAt

	// 序号递增的更新被接受
	rec.Seq = 2
	rec.IterationCount = 1
	if err := s.SaveConversation(ctx, &rec); err != nil {
		t.Fatalf("save seq=2: %v", err)
	}

	// 重复提交同一序号被拒绝
	stale := rec
	stale.Seq = 2
	if err := s.SaveConversation(ctx, &stale); !errors.Is(err, ErrStaleSequence) {
		t.Fatalf("expected ErrStaleSequence, got %v", err)
	}

	// 乱序的旧序号同样被拒绝
	stale.Seq = 1
	if err := s.SaveConversation(ctx, &stale); !errors.Is(err, ErrStaleSequence) {
		t.Fatalf("expected ErrStaleSequence for old seq, got %v", err)
	}

	got2, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got2.Seq != 2 || got2.IterationCount != 1 {
		t.Fatalf("unexpected record after update: %+v", got2)
	}
	if !got2.CreatedAt.Equal(created) {
		t.Fatalf("created_at must be preserved: %v vs %v", got2.CreatedAt, created)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	s := openTestStorage(t)

	got, err := s.GetConversation(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get missing conversation: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing conversation, got %+v", got)
	}
}

func TestListConversationsActiveOnly(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	recs := []ConversationRecord{
		{ID: "conv-open", StateJSON: "{}", Seq: 1},
		{ID: "conv-solved", StateJSON: "{}", Solved: true, Seq: 1},
		{ID: "conv-escalated", StateJSON: "{}", Escalated: true, Seq: 1},
	}
	for i := range recs {
		if err := s.SaveConversation(ctx, &recs[i]); err != nil {
			t.Fatalf("save %s: %v", recs[i].ID, err)
		}
	}

	all, err := s.ListConversations(ctx, ConversationQuery{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(all))
	}

	active, err := s.ListConversations(ctx, ConversationQuery{ActiveOnly: true})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "conv-open" {
		t.Fatalf("unexpected active conversations: %+v", active)
	}
}

func TestTurnRecordsQueryAndPrune(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-10 * time.Minute).UTC()
	turns := []TurnRecord{
		{ConversationID: "conv-1", Seq: 1, TraceID: "t1", Decision: "continue", UserText: "help", AssistantText: "which os?", CreatedAt: base},
		{ConversationID: "conv-1", Seq: 2, TraceID: "t2", Decision: "continue", Degraded: true, UserText: "ubuntu", AssistantText: "run this", CreatedAt: base.Add(time.Minute)},
		{ConversationID: "conv-2", Seq: 1, TraceID: "t3", Decision: "end", UserText: "works!", AssistantText: "great", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range turns {
		if err := s.InsertTurnRecord(ctx, &turns[i]); err != nil {
			t.Fatalf("insert turn %d: %v", i, err)
		}
	}

	got, err := s.QueryTurnRecords(ctx, TurnQuery{ConversationID: "conv-1", Limit: 10})
	if err != nil {
		t.Fatalf("query turns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("unexpected turn order: %d then %d", got[0].Seq, got[1].Seq)
	}

	ended, err := s.QueryTurnRecords(ctx, TurnQuery{Decision: "end", Limit: 10})
	if err != nil {
		t.Fatalf("query by decision: %v", err)
	}
	if len(ended) != 1 || ended[0].ConversationID != "conv-2" {
		t.Fatalf("unexpected decision query result: %+v", ended)
	}

	affected, err := s.DeleteTurnRecordsBefore(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected delete 1 turn, got %d", affected)
	}

	affected, err = s.DeleteTurnRecordsKeepLatest(ctx, 1)
	if err != nil {
		t.Fatalf("delete keep latest: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected delete 1 turn, got %d", affected)
	}

	count, err := s.CountTurnRecords(ctx)
	if err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 turn remaining, got %d", count)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := ConversationRecord{ID: "conv-1", StateJSON: "{}", Seq: 1}
	if err := s.SaveConversation(ctx, &rec); err != nil {
		t.Fatalf("save conversation: %v", err)
	}
	turn := TurnRecord{ConversationID: "conv-1", Seq: 1, Decision: "continue"}
	if err := s.InsertTurnRecord(ctx, &turn); err != nil {
		t.Fatalf("insert turn: %v", err)
	}

	if err := s.DeleteConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected conversation gone, got %+v", got)
	}
	count, err := s.CountTurnRecords(ctx)
	if err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected turns gone, got %d", count)
	}
}

func TestKnowledgeChunksRoundtrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	chunks := []KnowledgeChunk{
		{SourceID: "docs/docker.md#0", Title: "Install via Docker", Text: "docker compose up -d"},
		{SourceID: "docs/docker.md#1", Title: "Troubleshooting", Text: "check docker logs"},
		{SourceID: "docs/source.md#0", Title: "Install from source", Text: "conda activate hummingbot"},
	}
	if err := s.InsertKnowledgeChunks(ctx, chunks); err != nil {
		t.Fatalf("insert chunks: %v", err)
	}

	got, err := s.ListKnowledgeChunks(ctx)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if got[0].SourceID != "docs/docker.md#0" {
		t.Fatalf("unexpected first chunk: %+v", got[0])
	}

	affected, err := s.DeleteKnowledgeChunksBySource(ctx, "docs/docker.md")
	if err != nil {
		t.Fatalf("delete by source: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected delete 2 chunks, got %d", affected)
	}

	count, err := s.CountKnowledgeChunks(ctx)
	if err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 chunk remaining, got %d", count)
	}
}
