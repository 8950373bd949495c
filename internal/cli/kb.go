package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wizai/InstallWiz/internal/knowledge"
	"github.com/wizai/InstallWiz/internal/storage"
)

// kbCmd represents the kb command
var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "管理安装文档知识库",
	Long:  `导入 markdown 安装文档、查询知识库内容。助手回答时引用的文档片段都来自这里。`,
}

var kbImportCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "导入 markdown 文档到知识库",
	Long: `把一个或多个 markdown 文件（或目录，递归 *.md）切分成片段并写入知识库。
同一来源的旧片段会先被清除，重复导入是安全的。`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKBImport,
}

var kbSearchTopK int

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "在知识库中检索",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBSearch,
}

var kbInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示知识库概况",
	RunE:  runKBInfo,
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbImportCmd)
	kbCmd.AddCommand(kbSearchCmd)
	kbCmd.AddCommand(kbInfoCmd)

	kbSearchCmd.Flags().IntVar(&kbSearchTopK, "top-k", knowledge.DefaultTopK, "返回的片段数")
}

func runKBImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	defer store.Close()

	files, err := collectMarkdownFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("没有找到 markdown 文件")
	}

	totalChunks := 0
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("读取 %s 失败: %w", file, err)
		}

		source := filepath.ToSlash(file)
		chunks := knowledge.SplitMarkdown(source, string(content))
		if len(chunks) == 0 {
			fmt.Printf("跳过 %s（无内容）\n", file)
			continue
		}

		// 重复导入：先清除该来源的旧片段
		if _, err := store.DeleteKnowledgeChunksBySource(ctx, source); err != nil {
			return fmt.Errorf("清除 %s 旧片段失败: %w", file, err)
		}

		records := make([]storage.KnowledgeChunk, 0, len(chunks))
		for _, c := range chunks {
			records = append(records, storage.KnowledgeChunk{
				SourceID: c.SourceID,
				Title:    c.Title,
				Text:     c.Text,
			})
		}
		if err := store.InsertKnowledgeChunks(ctx, records); err != nil {
			return fmt.Errorf("写入 %s 片段失败: %w", file, err)
		}

		fmt.Printf("导入 %s: %d 个片段\n", file, len(chunks))
		totalChunks += len(chunks)
	}

	fmt.Printf("完成：共导入 %d 个片段（%d 个文件）\n", totalChunks, len(files))
	return nil
}

// collectMarkdownFiles 展开参数里的目录，收集所有 *.md 文件
func collectMarkdownFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("访问 %s 失败: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("遍历 %s 失败: %w", p, err)
		}
	}
	return files, nil
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	defer store.Close()

	query := strings.Join(args, " ")
	index := knowledge.NewSQLiteIndex(store)
	fragments, err := index.Search(ctx, query, kbSearchTopK)
	if err != nil {
		return fmt.Errorf("检索失败: %w", err)
	}

	if len(fragments) == 0 {
		fmt.Println("没有匹配的片段。")
		return nil
	}
	for i, frag := range fragments {
		fmt.Printf("--- %d. %s (score=%.3f) ---\n%s\n\n", i+1, frag.SourceID, frag.Score, frag.Text)
	}
	return nil
}

func runKBInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	defer store.Close()

	count, err := store.CountKnowledgeChunks(ctx)
	if err != nil {
		return fmt.Errorf("统计片段失败: %w", err)
	}

	chunks, err := store.ListKnowledgeChunks(ctx)
	if err != nil {
		return fmt.Errorf("读取片段失败: %w", err)
	}

	// 按来源文件聚合
	bySource := map[string]int{}
	for _, c := range chunks {
		source := c.SourceID
		if idx := strings.LastIndex(source, "#"); idx >= 0 {
			source = source[:idx]
		}
		bySource[source]++
	}

	fmt.Printf("知识库片段总数: %d\n\n", count)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Source\tChunks")
	fmt.Fprintln(w, "------\t------")
	for source, n := range bySource {
		fmt.Fprintf(w, "%s\t%d\n", source, n)
	}
	return w.Flush()
}
