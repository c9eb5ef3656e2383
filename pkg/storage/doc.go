/*
Package storage persists labdeck's plugins, service instances and alert
thresholds in BoltDB.

Each record kind lives in its own bucket. Keys are big-endian encodings of
the record id, which is assigned from the bucket sequence on create, so a
cursor walks records in creation order. Values are JSON.

	┌──────────── <dataDir>/labdeck.db ────────────┐
	│  plugins           (Plugin ID)               │
	│  instances         (Instance ID)             │
	│  alert_thresholds  (AlertThreshold ID)       │
	└──────────────────────────────────────────────┘

Instance passwords are stored as the ciphertext produced by the security
package; the store never sees plaintext credentials.

Deleting an instance also deletes its alert thresholds in the same
transaction. Lookups of missing records return errors wrapping ErrNotFound:

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.GetPlugin(id)
	if errors.Is(err, storage.ErrNotFound) {
		// 404
	}
*/
package storage
