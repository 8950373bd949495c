package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wizai/InstallWiz/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、列出会话和清理轮次记录的命令。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	Run:   runInfo,
}

var listActiveOnly bool

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出会话",
	Long:  `按最近更新时间列出会话，用 --active 只看未结束的。`,
	Run:   runList,
}

// pruneTurnsCmd represents the prune-turns command
var pruneTurnsCmd = &cobra.Command{
	Use:   "prune-turns",
	Short: "清理轮次记录",
	Long:  `根据用户指定的保留条数或天数，清理旧的轮次记录。`,
	Run:   runPruneTurns,
}

var (
	keepTurnCount int
	keepTurnDays  int
)

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd)
	storageCmd.AddCommand(listCmd)
	storageCmd.AddCommand(pruneTurnsCmd)

	listCmd.Flags().BoolVar(&listActiveOnly, "active", false, "只列出未结束的会话")
	pruneTurnsCmd.Flags().IntVar(&keepTurnCount, "keep", 0, "保留最近的 N 条记录")
	pruneTurnsCmd.Flags().IntVar(&keepTurnDays, "days", 0, "保留最近 N 天的记录")
}

func runPruneTurns(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if keepTurnCount <= 0 && keepTurnDays <= 0 {
		fmt.Println("Error: must specify either --keep or --days")
		cmd.Usage()
		os.Exit(1)
	}

	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}

	fmt.Println("Opening database...")
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var deletedCount int64

	if keepTurnCount > 0 {
		fmt.Printf("Pruning turn records, keeping latest %d records...\n", keepTurnCount)
		count, err := store.DeleteTurnRecordsKeepLatest(ctx, keepTurnCount)
		if err != nil {
			fmt.Printf("Error pruning by count: %v\n", err)
			os.Exit(1)
		}
		deletedCount += count
	}

	if keepTurnDays > 0 {
		before := time.Now().UTC().AddDate(0, 0, -keepTurnDays)
		fmt.Printf("Pruning turn records older than %d days (before %s)...\n", keepTurnDays, before.Format(time.RFC3339))
		count, err := store.DeleteTurnRecordsBefore(ctx, before)
		if err != nil {
			fmt.Printf("Error pruning by days: %v\n", err)
			os.Exit(1)
		}
		deletedCount += count
	}

	fmt.Printf("Prune completed. Deleted %d records.\n", deletedCount)

	if count, err := store.CountTurnRecords(ctx); err == nil {
		fmt.Printf("Remaining Turn Records: %d\n", count)
	}
}

func runList(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	conversations, err := store.ListConversations(ctx, storage.ConversationQuery{ActiveOnly: listActiveOnly})
	if err != nil {
		fmt.Printf("Error listing conversations: %v\n", err)
		os.Exit(1)
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tMethod\tOS\tTurns\tStatus\tUpdated")
	fmt.Fprintln(w, "--\t------\t--\t-----\t------\t-------")
	for _, c := range conversations {
		status := "active"
		switch {
		case c.Solved:
			status = "solved"
		case c.Escalated:
			status = "escalated"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, c.InstallMethod, c.OS, c.Seq, status, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func runInfo(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if cfg == nil {
		fmt.Println("Config not loaded")
		os.Exit(1)
	}

	// 1. 获取数据库文件信息
	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			dbSizeStr = "Not Found (Will be created on first run)"
		} else {
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		}
	} else {
		sizeMB := float64(info.Size()) / 1024 / 1024
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", sizeMB, dbPath)
	}

	// 2. 连接数据库
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Database File: %s\n", dbSizeStr)
		fmt.Printf("Error opening database: %v\n", err)
		return
	}
	defer store.Close()

	// 3. 获取统计信息
	conversations, err := store.ListConversations(ctx, storage.ConversationQuery{Limit: 5000})
	if err != nil {
		fmt.Printf("Error listing conversations: %v\n", err)
	}
	var active int
	for _, c := range conversations {
		if !c.Solved && !c.Escalated {
			active++
		}
	}
	turnCount, err := store.CountTurnRecords(ctx)
	if err != nil {
		fmt.Printf("Error counting turn records: %v\n", err)
	}
	chunkCount, err := store.CountKnowledgeChunks(ctx)
	if err != nil {
		fmt.Printf("Error counting knowledge chunks: %v\n", err)
	}

	// 4. 格式化输出
	fmt.Printf("Database File: %s\n\n", dbSizeStr)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "Conversations\t%d (active: %d)\n", len(conversations), active)
	fmt.Fprintf(w, "TurnRecords\t%d\n", turnCount)
	fmt.Fprintf(w, "KnowledgeChunks\t%d\n", chunkCount)
	w.Flush()
}
