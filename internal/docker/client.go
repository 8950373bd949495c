package docker

import (
	"fmt"
	"sync"

	"github.com/docker/docker/client"
)

var (
	cliOnce sync.Once
	cli     *client.Client
	cliErr  error
)

// GetClient 返回进程内共享的 Docker Client。
// 懒加载；初始化失败的结果会被缓存，后续调用直接返回同一个错误。
func GetClient() (*client.Client, error) {
	cliOnce.Do(func() {
		// FromEnv 读取 DOCKER_HOST 等环境变量，API 版本与 daemon 协商
		cli, cliErr = client.NewClientWithOpts(
			client.FromEnv,
			client.WithAPIVersionNegotiation(),
		)
	})
	if cliErr != nil {
		return nil, fmt.Errorf("create docker client: %w", cliErr)
	}
	return cli, nil
}

// CloseClient 关闭共享连接，诊断命令结束时调用
func CloseClient() error {
	if cli != nil {
		return cli.Close()
	}
	return nil
}
