package events

import "sort"

// Registry maps a user to the ids of the connections that user has open.
// A user with no connections has no entry at all. Not safe for concurrent
// use; the Hub serializes access.
type Registry struct {
	users map[int64]map[string]struct{}
	owner map[string]int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[int64]map[string]struct{}),
		owner: make(map[string]int64),
	}
}

// Add records connID under userID. A connection id belongs to exactly one
// user; adding it under another user moves it.
func (r *Registry) Add(userID int64, connID string) {
	if prev, ok := r.owner[connID]; ok {
		if prev == userID {
			return
		}
		r.Remove(prev, connID)
	}
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	r.owner[connID] = userID
}

// Remove drops connID from userID's set, deleting the user's entry when the
// set becomes empty. Removing an unknown pair is a no-op.
func (r *Registry) Remove(userID int64, connID string) {
	set, ok := r.users[userID]
	if !ok {
		return
	}
	if _, ok := set[connID]; !ok {
		return
	}
	delete(set, connID)
	delete(r.owner, connID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

// ConnectionsFor returns the sorted connection ids of userID. Unknown users
// yield an empty slice.
func (r *Registry) ConnectionsFor(userID int64) []string {
	set := r.users[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasUser reports whether userID has a registry entry
func (r *Registry) HasUser(userID int64) bool {
	_, ok := r.users[userID]
	return ok
}

// CountUsers returns the number of users with at least one connection
func (r *Registry) CountUsers() int {
	return len(r.users)
}

// CountConnections returns the number of connections across all users
func (r *Registry) CountConnections() int {
	return len(r.owner)
}
