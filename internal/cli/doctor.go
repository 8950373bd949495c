package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wizai/InstallWiz/internal/docker"
)

var (
	doctorImage string
	doctorPull  bool
	doctorSmoke bool
)

// doctorCmd 检查本机 Docker 环境是否满足 Docker 方式安装的条件
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查本机的 Docker 安装环境",
	Long: `逐项检查 Docker 方式安装 Hummingbot 的环境：
daemon 是否可达、镜像是否就绪、容器能否真正跑起来（--smoke）。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		defer docker.CloseClient()

		report := docker.Diagnose(ctx, docker.DiagnoseOptions{
			Image: doctorImage,
			Pull:  doctorPull,
			Smoke: doctorSmoke,
		})

		for _, check := range report.Checks {
			fmt.Printf("[%s] %s: %s\n", statusMark(check.Status), check.Name, check.Detail)
		}

		if !report.Healthy() {
			fmt.Println("\n环境检查未通过。")
			os.Exit(1)
		}
		fmt.Println("\n环境检查通过。")
		return nil
	},
}

func statusMark(s docker.CheckStatus) string {
	switch s {
	case docker.StatusOK:
		return "✓"
	case docker.StatusWarn:
		return "!"
	case docker.StatusFail:
		return "✗"
	default:
		return "-"
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorImage, "image", docker.DefaultImage, "待检查的镜像")
	doctorCmd.Flags().BoolVar(&doctorPull, "pull", false, "本地缺镜像时自动拉取")
	doctorCmd.Flags().BoolVar(&doctorSmoke, "smoke", false, "创建一次性容器做冒烟测试")
}
