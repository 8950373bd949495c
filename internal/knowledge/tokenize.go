package knowledge

import (
	"math"
	"strings"
	"unicode"
)

// stopwords 常见英文虚词，对安装文档的检索没有区分度
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "for": true, "from": true,
	"how": true, "i": true, "in": true, "is": true, "it": true, "my": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true,
	"to": true, "want": true, "what": true, "when": true, "with": true, "you": true,
}

// Tokenize 把文本切成小写词元：按非字母数字切分，去掉停用词和单字符词。
// docker-compose 这类连字符词会切成 docker / compose 两个词元，
// 正好和用户口语里的写法对齐。
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// idf 平滑的逆文档频率；df 越小的词对打分贡献越大
func idf(totalDocs, df float64) float64 {
	return math.Log(1 + totalDocs/(1+df))
}
