package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionsIdempotent(t *testing.T) {
	s := NewSubscriptions()

	assert.True(t, s.Add(NamespacePlugins, 5))
	assert.False(t, s.Add(NamespacePlugins, 5))
	assert.True(t, s.Has(NamespacePlugins, 5))
	assert.Equal(t, 1, s.Len(NamespacePlugins))

	assert.True(t, s.Remove(NamespacePlugins, 5))
	assert.False(t, s.Remove(NamespacePlugins, 5))
	assert.False(t, s.Has(NamespacePlugins, 5))
}

func TestSubscriptionsNamespacesAreDisjoint(t *testing.T) {
	s := NewSubscriptions()

	s.Add(NamespaceTorrents, 7)

	assert.True(t, s.Has(NamespaceTorrents, 7))
	assert.False(t, s.Has(NamespaceMetrics, 7))
	assert.False(t, s.Has(NamespacePlugins, 7))
}

func TestSubscriptionsUnknownNamespace(t *testing.T) {
	s := NewSubscriptions()
	bogus := Namespace(9)

	assert.False(t, bogus.Valid())
	assert.False(t, s.Add(bogus, 1))
	assert.False(t, s.Has(bogus, 1))
	assert.False(t, s.Remove(bogus, 1))
	assert.Equal(t, 0, s.Len(bogus))
}

func TestParseNamespace(t *testing.T) {
	tests := []struct {
		in     string
		want   Namespace
		wantOK bool
	}{
		{"plugins", NamespacePlugins, true},
		{"torrents", NamespaceTorrents, true},
		{"metrics", NamespaceMetrics, true},
		{"servers", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ns, ok := ParseNamespace(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, ns)
				assert.Equal(t, tt.in, ns.String())
			}
		})
	}
}
