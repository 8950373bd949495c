package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wizai/InstallWiz/internal/agent"
	"github.com/wizai/InstallWiz/internal/knowledge"
	"github.com/wizai/InstallWiz/internal/session"
	"github.com/wizai/InstallWiz/internal/storage"
	"github.com/wizai/InstallWiz/internal/tui"
	"github.com/wizai/InstallWiz/internal/ui"
)

var (
	chatUI        string
	chatSessionID string
	chatEphemeral bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式安装引导对话",
	Long: `进入一个多轮对话 REPL，引导完成 Hummingbot 安装。
助手会识别你的安装方式和操作系统，从本地知识库检索安装文档，
并在多轮没有进展时转交人工支持。
用 --session 指定会话 ID 可以恢复之前的对话。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		logger := newLogger(cfg.LogLevel)
		defer logger.Sync()

		// 存储承载知识库，临时对话也需要打开；ephemeral 只关掉会话落库
		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		sessionStore := store
		if chatEphemeral {
			sessionStore = nil
		}

		cm, err := agent.NewChatModel(ctx, cfg.Ark)
		if err != nil {
			return fmt.Errorf("初始化模型失败: %w", err)
		}

		engine, err := agent.NewEngine(ctx, agent.Deps{
			ChatModel:     cm,
			Index:         knowledge.NewSQLiteIndex(store),
			TopK:          cfg.Retrieval.TopK,
			EscalateAfter: cfg.Agent.EscalateAfter,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("构建会话引擎失败: %w", err)
		}

		sess, err := session.Open(ctx, engine, sessionStore, chatSessionID, logger)
		if err != nil {
			return fmt.Errorf("打开会话失败: %w", err)
		}

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		return uiImpl.Run(ctx, sess)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "恢复指定 ID 的会话（默认新建）")
	chatCmd.Flags().BoolVar(&chatEphemeral, "ephemeral", false, "临时对话，不落库")
}
