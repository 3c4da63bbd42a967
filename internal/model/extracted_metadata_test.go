package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gorm.io/datatypes"
)

func testContent(em *ExtractedMetadata) *Content {
	return &Content{
		ContentID: "c1",
		UserID:    1,
		Title:     "My Article",
		Tags: datatypes.NewJSONSlice([]Tag{
			{TagID: "t1", Title: "golang"},
			{TagID: "t2", Title: "search"},
		}),
		Metadata:          datatypes.NewJSONType(BasicMetadata{Description: "basic description"}),
		ExtractedMetadata: datatypes.NewJSONType(em),
	}
}

func TestBuildCleanedPayloadIsDeterministic(t *testing.T) {
	content := testContent(&ExtractedMetadata{EmbeddingText: "dense text"})

	first := BuildCleanedPayload(content)
	second := BuildCleanedPayload(content)
	assert.Equal(t, first, second)

	assert.Equal(t, "My Article", first.Title)
	assert.Equal(t, "c1", first.ContentID)
	assert.Equal(t, []string{"golang", "search"}, first.TagTitles)
}

func TestEmbeddingInputPrefersEmbeddingText(t *testing.T) {
	content := testContent(&ExtractedMetadata{EmbeddingText: "dense synthesis"})
	input := BuildCleanedPayload(content).EmbeddingInput()

	// embedding_text 存在时覆盖基础描述
	assert.Contains(t, input, "dense synthesis")
	assert.NotContains(t, input, "basic description")
	assert.Contains(t, input, "My Article")
	assert.Contains(t, input, "golang search")
}

func TestEmbeddingInputFallsBackToDescription(t *testing.T) {
	content := testContent(nil)
	input := BuildCleanedPayload(content).EmbeddingInput()
	assert.Contains(t, input, "basic description")
}

func TestIsValidContentType(t *testing.T) {
	for _, ct := range ContentTypes {
		assert.True(t, IsValidContentType(ct), ct)
	}
	assert.False(t, IsValidContentType("hologram"))
	assert.False(t, IsValidContentType(""))
	assert.False(t, IsValidContentType("Article")) // 类型区分大小写
}
