package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply_ToolCall(t *testing.T) {
	reply, ok := parseReply(`{"thought": "need jobs", "tool": "search_jobs", "args": {"keywords": ["go"]}}`)
	require.True(t, ok)
	assert.True(t, reply.isToolCall())
	assert.False(t, reply.isFinalAnswer())
	assert.Equal(t, "search_jobs", reply.Tool)
	assert.Equal(t, []any{"go"}, reply.Args["keywords"])
}

func TestParseReply_FinalAnswer(t *testing.T) {
	reply, ok := parseReply(`{"output": "done", "confidence": 0.8, "rationale": "found it", "fields": {"ats_score": 72}}`)
	require.True(t, ok)
	assert.True(t, reply.isFinalAnswer())
	assert.Equal(t, 0.8, *reply.Confidence)
	assert.Equal(t, float64(72), reply.Fields["ats_score"])
}

func TestParseReply_JSONInsideCodeFence(t *testing.T) {
	text := "Here is my answer:\n```json\n{\"output\": \"hi\", \"confidence\": 1.0}\n```"
	reply, ok := parseReply(text)
	require.True(t, ok)
	assert.Equal(t, "hi", reply.Output)
}

func TestParseReply_BracesInsideStrings(t *testing.T) {
	reply, ok := parseReply(`{"output": "use {curly} braces", "confidence": 0.5}`)
	require.True(t, ok)
	assert.Equal(t, "use {curly} braces", reply.Output)
}

func TestParseReply_Garbage(t *testing.T) {
	for _, text := range []string{
		"no json here",
		`{"unrelated": true}`,
		`{"output": `,
		"",
	} {
		_, ok := parseReply(text)
		assert.False(t, ok, "expected parse failure for %q", text)
	}
}

func TestClampConfidence(t *testing.T) {
	low, high, mid := -0.5, 1.7, 0.42
	assert.Equal(t, 0.0, clampConfidence(&low))
	assert.Equal(t, 1.0, clampConfidence(&high))
	assert.Equal(t, 0.42, clampConfidence(&mid))
	assert.Equal(t, 0.5, clampConfidence(nil))
}

func TestDigest_StableAndShort(t *testing.T) {
	a := Digest("hello", "world")
	b := Digest("hello", "world")
	c := Digest("helloworld")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "separator must prevent concatenation collisions")
	assert.Len(t, a, 16)
}
