package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetForms(t *testing.T) {
	for _, in := range []string{
		"https://t.me/news",
		"http://t.me/news/",
		"t.me/news?start=abc",
		"t.me/news/123",
		"@news",
		"news",
		"  @news  ",
	} {
		got, err := ParseTarget(in)
		require.NoError(t, err, in)
		assert.Equal(t, "news", got.Handle, in)
		assert.Equal(t, "@news", got.String(), in)
	}
}

func TestParseTargetRejects(t *testing.T) {
	for _, in := range []string{"", "@", "https://t.me/", "t.me/?x=1"} {
		_, err := ParseTarget(in)
		require.Error(t, err, in)
		assert.True(t, IsKind(err, KindValidation), in)
	}
}

func TestSameTargetIgnoresCaseAndForm(t *testing.T) {
	assert.True(t, SameTarget("@News", "https://t.me/news"))
	assert.True(t, SameTarget("@news", "@NEWS"))
	assert.False(t, SameTarget("@news", "@sports"))
}

func TestExtractTargets(t *testing.T) {
	text := "join https://t.me/a and @b\n@b t.me/c?x=1 plain"
	assert.Equal(t, []string{"https://t.me/a", "@b", "t.me/c?x=1"}, ExtractTargets(text))
	assert.Empty(t, ExtractTargets("nothing here"))
}
