package docker

import "strings"

// truncateID 取镜像/容器 ID 的短格式（前 12 位）
func truncateID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
