package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		utterance string
		want      Intent
	}{
		{"hello, is grandma okay", IntentGreeting},
		{"Hey there", IntentGreeting},
		{"  HI  ", IntentGreeting},
		{"How is Grandpa doing?", IntentStatusQuery},
		{"is my grandmother alright", IntentStatusQuery},
		{"grandfather", IntentStatusQuery},
		{"oke?", IntentStatusQuery},
		{"what's the weather", IntentUnrecognized},
		{"", IntentUnrecognized},
		{"   ", IntentUnrecognized},
		// 子串匹配："this" 包含 "hi"
		{"this is fine", IntentGreeting},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.utterance))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "is grandma ok", Normalize("  Is GRANDMA ok \n"))
}
