package assistant

import "strings"

// Intent 语句意图
type Intent string

const (
	IntentGreeting     Intent = "greeting"
	IntentStatusQuery  Intent = "status_query"
	IntentUnrecognized Intent = "unrecognized"
)

type rule struct {
	intent Intent
	tokens []string
}

// rules 按顺序匹配，先命中者胜出（问候优先于状态查询）
var rules = []rule{
	{intent: IntentGreeting, tokens: []string{"hello", "hi", "hey"}},
	{intent: IntentStatusQuery, tokens: []string{"grandpa", "grandma", "grandmother", "grandfather", "oke"}},
}

// Normalize 小写并去除首尾空白
func Normalize(utterance string) string {
	return strings.ToLower(strings.TrimSpace(utterance))
}

// Classify 子串匹配（不按单词边界）
func Classify(utterance string) Intent {
	text := Normalize(utterance)
	if text == "" {
		return IntentUnrecognized
	}
	for _, r := range rules {
		for _, token := range r.tokens {
			if strings.Contains(text, token) {
				return r.intent
			}
		}
	}
	return IntentUnrecognized
}
