package knowledge

import (
	"fmt"
	"strings"
)

// Chunk 是导入阶段产出的待入库片段
type Chunk struct {
	// SourceID 形如 docs/installation/docker.md#2，# 后为片段在文件内的序号
	SourceID string
	// Title 片段所属小节标题（文件内最近的 markdown 标题）
	Title string
	// Text 片段正文（含标题行，方便直接拼进提示词）
	Text string
}

// 单个片段的长度上限（rune）。超长小节按段落继续切，
// 避免单片段占满 Responder 的上下文。
const maxChunkRunes = 1600

// SplitMarkdown 把一篇 markdown 文档按标题切成片段。
// source 是文档的来源标识（通常为相对路径），拼进每个片段的 SourceID。
// 空白小节会被丢弃。
func SplitMarkdown(source, content string) []Chunk {
	type section struct {
		title string
		body  []string
	}

	var sections []section
	current := section{}
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			if len(current.body) > 0 || current.title != "" {
				sections = append(sections, current)
			}
			current = section{title: strings.TrimSpace(strings.TrimLeft(line, "# "))}
			current.body = append(current.body, line)
			continue
		}
		current.body = append(current.body, line)
	}
	if len(current.body) > 0 || current.title != "" {
		sections = append(sections, current)
	}

	var chunks []Chunk
	idx := 0
	for _, sec := range sections {
		text := strings.TrimSpace(strings.Join(sec.body, "\n"))
		if text == "" {
			continue
		}
		for _, part := range splitByParagraph(text, maxChunkRunes) {
			chunks = append(chunks, Chunk{
				SourceID: fmt.Sprintf("%s#%d", source, idx),
				Title:    sec.title,
				Text:     part,
			})
			idx++
		}
	}
	return chunks
}

// splitByParagraph 把超长文本按空行分段后贪心合并，每块不超过 maxRunes。
// 单个段落本身超长时不再细切（代码块拆开会失去意义）。
func splitByParagraph(text string, maxRunes int) []string {
	if len([]rune(text)) <= maxRunes {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	var out []string
	var buf strings.Builder
	bufRunes := 0
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
			bufRunes = 0
		}
	}
	for _, p := range paragraphs {
		pRunes := len([]rune(p))
		if bufRunes > 0 && bufRunes+pRunes+2 > maxRunes {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
			bufRunes += 2
		}
		buf.WriteString(p)
		bufRunes += pRunes
	}
	flush()
	return out
}
