package nip1

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
)

func TestIsReplaceable(t *testing.T) {
	assert.True(t, IsReplaceable(0))
	assert.True(t, IsReplaceable(3))
	assert.True(t, IsReplaceable(10002))
	assert.False(t, IsReplaceable(1))
	assert.False(t, IsReplaceable(20000))
}

func TestIsAddressable(t *testing.T) {
	assert.True(t, IsAddressable(30000))
	assert.True(t, IsAddressable(39000))
	assert.False(t, IsAddressable(29999))
	assert.False(t, IsAddressable(40000))
}

func TestIsEphemeral(t *testing.T) {
	assert.True(t, IsEphemeral(20000))
	assert.True(t, IsEphemeral(29999))
	assert.False(t, IsEphemeral(19999))
	assert.False(t, IsEphemeral(30000))
}

func TestFirstTagValue(t *testing.T) {
	tags := nostr.Tags{{"d", "foo"}, {"h", "group1"}}

	v, ok := FirstTagValue(tags, "h")
	assert.True(t, ok)
	assert.Equal(t, "group1", v)

	_, ok = FirstTagValue(tags, "missing")
	assert.False(t, ok)
}

func TestHasTag(t *testing.T) {
	tags := nostr.Tags{{"e", "abc"}}
	assert.True(t, HasTag(tags, "e"))
	assert.False(t, HasTag(tags, "p"))
}

func TestDTag(t *testing.T) {
	assert.Equal(t, "foo", DTag(nostr.Tags{{"d", "foo"}}))
	assert.Equal(t, "", DTag(nostr.Tags{}))
}

func TestGroupID(t *testing.T) {
	t.Run("addressable kind uses d tag", func(t *testing.T) {
		ev := &nostr.Event{Kind: 39000, Tags: nostr.Tags{{"d", "group1"}}}
		id, ok := GroupID(ev)
		assert.True(t, ok)
		assert.Equal(t, "group1", id)
	})

	t.Run("non-addressable kind uses h tag", func(t *testing.T) {
		ev := &nostr.Event{Kind: 9, Tags: nostr.Tags{{"h", "group1"}}}
		id, ok := GroupID(ev)
		assert.True(t, ok)
		assert.Equal(t, "group1", id)
	})
}

func TestCoordinateOf(t *testing.T) {
	t.Run("addressable event", func(t *testing.T) {
		ev := &nostr.Event{Kind: 39000, PubKey: "pub1", Tags: nostr.Tags{{"d", "group1"}}}
		c, ok := CoordinateOf(ev)
		assert.True(t, ok)
		assert.Equal(t, Coordinate{Kind: 39000, Pubkey: "pub1", DTag: "group1"}, c)
	})

	t.Run("non-addressable event", func(t *testing.T) {
		ev := &nostr.Event{Kind: 1}
		_, ok := CoordinateOf(ev)
		assert.False(t, ok)
	})
}

func TestPTagValues(t *testing.T) {
	tags := nostr.Tags{{"p", "a"}, {"e", "x"}, {"p", "b"}}
	assert.Equal(t, []string{"a", "b"}, PTagValues(tags))
}

func TestMatchesFilter(t *testing.T) {
	since := nostr.Timestamp(100)
	until := nostr.Timestamp(200)

	ev := &nostr.Event{
		ID:        "abc",
		Kind:      1,
		PubKey:    "pub1",
		CreatedAt: 150,
		Tags:      nostr.Tags{{"h", "group1"}},
	}

	tests := []struct {
		name   string
		filter nostr.Filter
		want   bool
	}{
		{"empty filter matches everything", nostr.Filter{}, true},
		{"id match", nostr.Filter{IDs: []string{"abc"}}, true},
		{"id mismatch", nostr.Filter{IDs: []string{"other"}}, false},
		{"kind match", nostr.Filter{Kinds: []int{1}}, true},
		{"kind mismatch", nostr.Filter{Kinds: []int{2}}, false},
		{"author match", nostr.Filter{Authors: []string{"pub1"}}, true},
		{"author mismatch", nostr.Filter{Authors: []string{"other"}}, false},
		{"since satisfied", nostr.Filter{Since: &since}, true},
		{"since violated", nostr.Filter{Since: &[]nostr.Timestamp{200}[0]}, false},
		{"until satisfied", nostr.Filter{Until: &until}, true},
		{"until violated", nostr.Filter{Until: &[]nostr.Timestamp{100}[0]}, false},
		{"tag match", nostr.Filter{Tags: nostr.TagMap{"h": []string{"group1"}}}, true},
		{"tag mismatch", nostr.Filter{Tags: nostr.TagMap{"h": []string{"other"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilter(ev, tt.filter))
		})
	}
}
