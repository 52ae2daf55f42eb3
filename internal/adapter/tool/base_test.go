package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextResult(t *testing.T) {
	r := TextResult("hello")
	assert.Equal(t, []string{"hello"}, r.Content)
}

func TestBlocksResult(t *testing.T) {
	r := BlocksResult("answer", "\n\nSources:\n1. https://example.com")
	assert.Len(t, r.Content, 2)
	assert.Equal(t, "answer", r.Content[0])

	assert.Empty(t, BlocksResult().Content)
}

func TestJoinComma(t *testing.T) {
	assert.Equal(t, "", joinComma(nil))
	assert.Equal(t, "sonar", joinComma([]string{"sonar"}))
	assert.Equal(t, "sonar, sonar-pro", joinComma([]string{"sonar", "sonar-pro"}))
}
