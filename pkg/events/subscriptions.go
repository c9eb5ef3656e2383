package events

import "fmt"

// Namespace is one of the three disjoint topic-key spaces
type Namespace int

const (
	NamespacePlugins Namespace = iota
	NamespaceTorrents
	NamespaceMetrics
)

func (n Namespace) String() string {
	switch n {
	case NamespacePlugins:
		return "plugins"
	case NamespaceTorrents:
		return "torrents"
	case NamespaceMetrics:
		return "metrics"
	}
	return fmt.Sprintf("namespace(%d)", int(n))
}

// Valid reports whether n is one of the three namespaces
func (n Namespace) Valid() bool {
	return n >= NamespacePlugins && n <= NamespaceMetrics
}

// ParseNamespace maps the suffix of a subscribe/unsubscribe control
// message onto a Namespace
func ParseNamespace(s string) (Namespace, bool) {
	switch s {
	case "plugins":
		return NamespacePlugins, true
	case "torrents":
		return NamespaceTorrents, true
	case "metrics":
		return NamespaceMetrics, true
	}
	return 0, false
}

type keySet map[int64]struct{}

// Subscriptions holds the topic keys one connection has opted into.
// Not safe for concurrent use; the Hub serializes access.
type Subscriptions struct {
	plugins  keySet
	torrents keySet
	metrics  keySet
}

// NewSubscriptions returns empty subscription sets
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		plugins:  make(keySet),
		torrents: make(keySet),
		metrics:  make(keySet),
	}
}

func (s *Subscriptions) set(ns Namespace) keySet {
	switch ns {
	case NamespacePlugins:
		return s.plugins
	case NamespaceTorrents:
		return s.torrents
	case NamespaceMetrics:
		return s.metrics
	}
	return nil
}

// Add inserts key into the namespace's set. Reports whether the set changed.
func (s *Subscriptions) Add(ns Namespace, key int64) bool {
	set := s.set(ns)
	if set == nil {
		return false
	}
	if _, ok := set[key]; ok {
		return false
	}
	set[key] = struct{}{}
	return true
}

// Remove deletes key from the namespace's set. Reports whether the set changed.
func (s *Subscriptions) Remove(ns Namespace, key int64) bool {
	set := s.set(ns)
	if set == nil {
		return false
	}
	if _, ok := set[key]; !ok {
		return false
	}
	delete(set, key)
	return true
}

// Has reports membership of key in the namespace's set
func (s *Subscriptions) Has(ns Namespace, key int64) bool {
	_, ok := s.set(ns)[key]
	return ok
}

// Len returns the number of keys subscribed in a namespace
func (s *Subscriptions) Len(ns Namespace) int {
	return len(s.set(ns))
}
