package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/wizai/InstallWiz/internal/storage"
)

// Fragment 是一次检索返回的文档片段
type Fragment struct {
	// Text 片段正文
	Text string `json:"text"`
	// SourceID 片段来源标识（如 docs/installation/docker.md#2）
	SourceID string `json:"source_id"`
	// Score 相关性得分，越大越相关
	Score float64 `json:"score"`
}

// Index 是引擎消费的知识库检索接口。
// 约定：相同索引内容 + 相同 query 必须返回确定性的排序结果；不允许修改入参。
type Index interface {
	Search(ctx context.Context, query string, topK int) ([]Fragment, error)
}

// SQLiteIndex 基于 sqlite 中持久化的文档片段做稀疏关键词检索。
// 安装文档知识库的规模很小（几百个片段量级），每次检索全量加载后在内存打分即可，
// 不需要倒排索引。打分是纯函数，保证同库同查询的结果可复现。
type SQLiteIndex struct {
	store *storage.Storage
}

// NewSQLiteIndex 创建基于存储层的检索索引
func NewSQLiteIndex(store *storage.Storage) *SQLiteIndex {
	return &SQLiteIndex{store: store}
}

// Search 对知识库做关键词检索，返回按相关性排序的前 topK 个片段。
// query 为空或知识库为空时返回空结果（不报错）。
func (i *SQLiteIndex) Search(ctx context.Context, query string, topK int) ([]Fragment, error) {
	if i == nil || i.store == nil {
		return nil, fmt.Errorf("knowledge index not initialized")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	chunks, err := i.store.ListKnowledgeChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list knowledge chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	scored := scoreChunks(queryTerms, chunks)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// DefaultTopK 默认返回的片段数
const DefaultTopK = 3

// scoreChunks 用 tf-idf 风格的打分对片段排序。
// 排序键为 (score 降序, source_id 升序, id 升序)，保证确定性。
func scoreChunks(queryTerms []string, chunks []storage.KnowledgeChunk) []Fragment {
	docFreq := make(map[string]int, len(queryTerms))
	termFreqs := make([]map[string]int, len(chunks))
	for ci, c := range chunks {
		tf := termFrequency(Tokenize(c.Title + " " + c.Text))
		termFreqs[ci] = tf
		for _, q := range queryTerms {
			if tf[q] > 0 {
				docFreq[q]++
			}
		}
	}

	type scoredChunk struct {
		chunk storage.KnowledgeChunk
		score float64
	}
	scored := make([]scoredChunk, 0, len(chunks))
	total := float64(len(chunks))
	for ci, c := range chunks {
		var score float64
		for _, q := range queryTerms {
			tf := termFreqs[ci][q]
			if tf == 0 {
				continue
			}
			score += float64(tf) * idf(total, float64(docFreq[q]))
		}
		if score > 0 {
			scored = append(scored, scoredChunk{chunk: c, score: score})
		}
	}

	sort.Slice(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score > scored[b].score
		}
		if scored[a].chunk.SourceID != scored[b].chunk.SourceID {
			return scored[a].chunk.SourceID < scored[b].chunk.SourceID
		}
		return scored[a].chunk.ID < scored[b].chunk.ID
	})

	out := make([]Fragment, 0, len(scored))
	for _, sc := range scored {
		out = append(out, Fragment{
			Text:     sc.chunk.Text,
			SourceID: sc.chunk.SourceID,
			Score:    sc.score,
		})
	}
	return out
}

func termFrequency(terms []string) map[string]int {
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return tf
}
