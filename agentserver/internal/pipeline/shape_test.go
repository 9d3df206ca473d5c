package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

func TestParagraphs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Paragraphs("a\n\nb\n  \nc\n"))
	assert.Equal(t, []string{"line one\nline two"}, Paragraphs("line one\nline two"))
	assert.Nil(t, Paragraphs("   "))
}

func TestShapeForTier(t *testing.T) {
	text := "**Title**\n\nFirst para\nwraps here.\n\n- item one\n- item two\n"

	assert.Equal(t, "**Title**\n\nFirst para\nwraps here.\n\n- item one\n- item two", ShapeForTier(domain.TierPaid, text))

	free := ShapeForTier(domain.TierFree, text)
	assert.Equal(t, "**Title** First para wraps here. - item one - item two", free)
	assert.Len(t, Paragraphs(free), 1)

	assert.Equal(t, "", ShapeForTier(domain.TierFree, ""))
}
