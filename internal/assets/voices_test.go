package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveVoice(t *testing.T) {
	v, ok := ResolveVoice(" Wizard ")
	assert.True(t, ok)
	assert.Equal(t, "Matthew", v.PollyVoice)

	v, ok = ResolveVoice("pirate-captain")
	assert.False(t, ok)
	assert.Equal(t, DefaultVoice, v.Key)

	v, ok = ResolveVoice("")
	assert.False(t, ok)
	assert.Equal(t, DefaultVoice, v.Key)
}

func TestBuildSSML(t *testing.T) {
	narrator, _ := ResolveVoice("narrator")

	t.Run("голос и тип истории", func(t *testing.T) {
		ssml := BuildSSML("Good night, little fox.", narrator, "bedtime", "")
		assert.Equal(t,
			`<speak><prosody rate="85%" volume="soft"><prosody rate="95%" pitch="+0%">Good night, little fox.</prosody></prosody></speak>`,
			ssml)
	})

	t.Run("эмоция между типом и голосом", func(t *testing.T) {
		ssml := BuildSSML("Hooray!", narrator, "adventure", "excited")
		assert.Equal(t,
			`<speak><prosody rate="105%" volume="medium"><prosody rate="115%" pitch="+10%"><prosody rate="95%" pitch="+0%">Hooray!</prosody></prosody></prosody></speak>`,
			ssml)
	})

	t.Run("неизвестные тип и эмоция пропускаются", func(t *testing.T) {
		ssml := BuildSSML("Hello", narrator, "space-opera", "grumpy")
		assert.Equal(t, `<speak><prosody rate="95%" pitch="+0%">Hello</prosody></speak>`, ssml)
	})

	t.Run("текст экранируется", func(t *testing.T) {
		ssml := BuildSSML(`Tom & Jerry said "<hi>"`, narrator, "", "")
		assert.NotContains(t, ssml, "<hi>")
		assert.Contains(t, ssml, "Tom &amp; Jerry")
		assert.Equal(t, `Tom & Jerry said "<hi>"`, StripMarkup(ssml))
	})
}
