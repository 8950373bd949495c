package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/containerd/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// DefaultImage 是 Docker 方式安装 Hummingbot 使用的官方镜像
const DefaultImage = "hummingbot/hummingbot:latest"

// CheckStatus 单项检查结果
type CheckStatus string

const (
	StatusOK   CheckStatus = "ok"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
	StatusSkip CheckStatus = "skip"
)

// CheckResult 一项环境检查的结果
type CheckResult struct {
	// Name 检查项名称（daemon/image/smoke）
	Name string `json:"name"`
	// Status ok/warn/fail/skip
	Status CheckStatus `json:"status"`
	// Detail 人类可读的详情
	Detail string `json:"detail"`
}

// Report 一次完整诊断的结果
type Report struct {
	Checks []CheckResult `json:"checks"`
}

// Healthy 没有任何 fail 项时为 true
func (r *Report) Healthy() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

func (r *Report) add(name string, status CheckStatus, format string, args ...any) {
	r.Checks = append(r.Checks, CheckResult{
		Name:   name,
		Status: status,
		Detail: fmt.Sprintf(format, args...),
	})
}

// DiagnoseOptions 诊断参数
type DiagnoseOptions struct {
	// Image 待检查的镜像引用；为空使用 DefaultImage
	Image string
	// Pull 本地缺镜像时是否自动拉取
	Pull bool
	// Smoke 是否做容器冒烟测试（创建并启动一个一次性容器）
	Smoke bool
}

// Diagnose 检查本机的 Docker 安装环境是否满足运行 Hummingbot 的条件。
// 检查逐项降级：daemon 不可达时后续检查记为 skip，而不是中断。
func Diagnose(ctx context.Context, opts DiagnoseOptions) *Report {
	report := &Report{}
	imageRef := strings.TrimSpace(opts.Image)
	if imageRef == "" {
		imageRef = DefaultImage
	}

	cli, err := GetClient()
	if err != nil {
		report.add("daemon", StatusFail, "无法创建 Docker 客户端: %v", err)
		report.add("image", StatusSkip, "daemon 不可用")
		report.add("smoke", StatusSkip, "daemon 不可用")
		return report
	}

	ping, err := cli.Ping(ctx)
	if err != nil {
		report.add("daemon", StatusFail, "无法连接 Docker daemon（Docker Desktop 是否在运行？）: %v", err)
		report.add("image", StatusSkip, "daemon 不可用")
		report.add("smoke", StatusSkip, "daemon 不可用")
		return report
	}
	version, err := cli.ServerVersion(ctx)
	if err != nil {
		report.add("daemon", StatusOK, "daemon 可达 (API %s)", ping.APIVersion)
	} else {
		report.add("daemon", StatusOK, "daemon 可达 (Docker %s, API %s, %s/%s)",
			version.Version, ping.APIVersion, version.Os, version.Arch)
	}

	present, err := checkImage(ctx, report, imageRef, opts.Pull)
	if err != nil {
		report.add("smoke", StatusSkip, "镜像检查失败")
		return report
	}

	if !opts.Smoke {
		report.add("smoke", StatusSkip, "未启用（--smoke）")
		return report
	}
	if !present {
		report.add("smoke", StatusSkip, "本地没有镜像 %s", imageRef)
		return report
	}
	smokeTest(ctx, report, imageRef)
	return report
}

// checkImage 检查镜像是否在本地，缺失时按 pull 参数决定是否拉取。
// 返回检查结束后镜像是否可用。
func checkImage(ctx context.Context, report *Report, imageRef string, pull bool) (bool, error) {
	cli, err := GetClient()
	if err != nil {
		return false, err
	}

	inspect, _, err := cli.ImageInspectWithRaw(ctx, imageRef)
	if err == nil {
		report.add("image", StatusOK, "镜像 %s 已就绪 (%s, %.0f MB)",
			imageRef, truncateID(strings.TrimPrefix(inspect.ID, "sha256:")), float64(inspect.Size)/1024/1024)
		return true, nil
	}
	if !errdefs.IsNotFound(err) {
		report.add("image", StatusFail, "检查镜像 %s 失败: %v", imageRef, err)
		return false, err
	}

	if !pull {
		report.add("image", StatusWarn, "本地没有镜像 %s，运行前需要先 docker pull（或使用 --pull）", imageRef)
		return false, nil
	}

	reader, err := cli.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		report.add("image", StatusFail, "拉取镜像 %s 失败: %v", imageRef, err)
		return false, err
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		report.add("image", StatusFail, "读取镜像拉取进度失败: %v", err)
		return false, err
	}

	report.add("image", StatusOK, "镜像 %s 拉取完成", imageRef)
	return true, nil
}

// smokeTest 用一次性容器验证 daemon 能真正跑起这个镜像。
// AutoRemove 保证容器停止后自动清理。
func smokeTest(ctx context.Context, report *Report, imageRef string) {
	cli, err := GetClient()
	if err != nil {
		report.add("smoke", StatusFail, "获取客户端失败: %v", err)
		return
	}

	name := fmt.Sprintf("installwiz-doctor-%d", time.Now().UnixNano())
	resp, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:      imageRef,
			Entrypoint: []string{"sh", "-c", "exit 0"},
		},
		&container.HostConfig{AutoRemove: true},
		&network.NetworkingConfig{},
		&v1.Platform{},
		name,
	)
	if err != nil {
		report.add("smoke", StatusFail, "创建容器失败: %v", err)
		return
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		report.add("smoke", StatusFail, "启动容器失败: %v", err)
		return
	}

	// 容器跑完即退出；AutoRemove 不触发时兜底强制删除
	_ = cli.ContainerStop(ctx, resp.ID, container.StopOptions{})
	_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})

	report.add("smoke", StatusOK, "容器冒烟测试通过 (%s)", truncateID(resp.ID))
}
