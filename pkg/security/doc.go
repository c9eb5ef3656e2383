/*
Package security keeps the credentials labdeck uses to reach service
instances encrypted at rest.

A SecretsManager wraps an AES-256-GCM AEAD. The key is derived from the
configured secret with SHA-256, so the same secret must be supplied across
restarts or stored passwords become unreadable.

Ciphertexts carry their random 12-byte nonce as a prefix:

	┌──────────┬──────────────────────────────┐
	│  nonce   │  sealed password + GCM tag   │
	└──────────┴──────────────────────────────┘

Instance helpers operate on types.Instance directly:

	sm, err := security.NewSecretsManagerFromPassword(cfg.SecretKey)
	if err != nil {
		return err
	}
	if err := sm.SealInstancePassword(inst, req.Password); err != nil {
		return err
	}

	// Later, when a poller logs in
	password, err := sm.InstancePassword(inst)

Decryption failures (tampered data, wrong key) are returned as errors and
never as partial plaintext.
*/
package security
