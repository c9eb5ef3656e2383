/*
Package types defines the records labdeck persists.

	Plugin          a user's integration of one service (jexactyl, qbittorrent, glances)
	Instance        a concrete deployment of a service the pollers talk to
	AlertThreshold  a percentage limit on an instance's cpu, memory or disk

All identifiers are int64 sequence numbers assigned by the store. Records
carry the owning UserID so producers know whose connections to target when
they emit realtime events. Instance.Password is always ciphertext once it
has passed through the API; see package security.
*/
package types
