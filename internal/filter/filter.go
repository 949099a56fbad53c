package filter

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var topicsYAML []byte

// ContentFilter 基于固定话题关键词表的敏感内容检查器。
// 关键词表在进程启动时加载一次，之后只读。
type ContentFilter struct {
	topics       map[string][]string // 话题 -> 触发词列表
	phraseTopics map[string][]string // 触发词 -> 所属话题列表，用于二元词组匹配
}

// New 解析内置的话题关键词表并构建检查器。
func New() (*ContentFilter, error) {
	var topics map[string][]string
	if err := yaml.Unmarshal(topicsYAML, &topics); err != nil {
		return nil, fmt.Errorf("解析话题关键词表失败: %w", err)
	}

	phraseTopics := make(map[string][]string)
	for topic, phrases := range topics {
		for _, phrase := range phrases {
			phraseTopics[phrase] = append(phraseTopics[phrase], topic)
		}
	}

	return &ContentFilter{
		topics:       topics,
		phraseTopics: phraseTopics,
	}, nil
}

// tokenize 清洗文本：转小写、去首尾空白、只保留字母数字和空白，再按空白切分。
func tokenize(text string) []string {
	text = strings.TrimSpace(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

// Check 判断文本是否包含敏感内容，返回是否敏感及命中的话题集合。
// 话题集合无序，调用方不得依赖顺序。
func (f *ContentFilter) Check(text string) (bool, []string) {
	if text == "" {
		return false, nil
	}

	textLower := strings.ToLower(text)
	words := tokenize(text)
	detected := make(map[string]struct{})

	// 子串匹配：对原始小写文本逐一检查触发词
	for topic, phrases := range f.topics {
		for _, phrase := range phrases {
			if strings.Contains(textLower, phrase) {
				detected[topic] = struct{}{}
				break
			}
		}
	}

	// 相邻词对匹配：标点被清除后仍能命中两词短语
	for i := 0; i+1 < len(words); i++ {
		bigram := words[i] + " " + words[i+1]
		for _, topic := range f.phraseTopics[bigram] {
			detected[topic] = struct{}{}
		}
	}

	if len(detected) == 0 {
		return false, nil
	}
	result := make([]string, 0, len(detected))
	for topic := range detected {
		result = append(result, topic)
	}
	return true, result
}
