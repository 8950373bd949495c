package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wizai/InstallWiz/internal/agent"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	reader := bufio.NewReader(in)

	fmt.Fprintf(out, "进入安装助手对话模式（会话 %s）。输入 exit/quit 退出。\n", backend.ID())
	if backend.State().Terminal() {
		fmt.Fprintln(out, "提示：该会话已经结束。")
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\n已退出。")
				return nil
			}
			return fmt.Errorf("读取输入失败: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		}

		reply, err := backend.Send(ctx, line)
		if err != nil {
			return err
		}

		if strings.TrimSpace(reply) == "" {
			fmt.Fprintln(out, "助手: (无输出)")
		} else {
			fmt.Fprintf(out, "助手: %s\n", reply)
		}
		printStatusLine(out, backend.State())
		fmt.Fprintln(out)
	}
}

// printStatusLine 打印一行当前会话进度，便于在控制台里跟踪识别结果
func printStatusLine(w io.Writer, state *agent.ConversationState) {
	if state == nil {
		return
	}
	status := fmt.Sprintf("[安装方式: %s | 系统: %s | 无进展轮次: %d]",
		state.InstallMethod, state.OS, state.IterationCount)
	switch {
	case state.Solved:
		status += " 已解决"
	case state.Escalated:
		status += " 已转人工"
	}
	fmt.Fprintln(w, status)
}
