package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/labdeck/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketPlugins   = []byte("plugins")
	bucketInstances = []byte("instances")
	bucketAlerts    = []byte("alert_thresholds")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "labdeck.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPlugins, bucketInstances, bucketAlerts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// itob encodes an id as a big-endian key so cursor order is id order
func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// insert assigns the next sequence of bucket to *id and stores v under it
func insert(db *bolt.DB, bucket []byte, id *int64, v interface{}) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		*id = int64(seq)
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put(itob(*id), data)
	})
}

// replace overwrites an existing record
func replace(db *bolt.DB, bucket []byte, id int64, v interface{}) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(itob(id)) == nil {
			return fmt.Errorf("%s %d: %w", bucket, id, ErrNotFound)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

func get[T any](db *bolt.DB, bucket []byte, id int64) (*T, error) {
	var v T
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(itob(id))
		if data == nil {
			return fmt.Errorf("%s %d: %w", bucket, id, ErrNotFound)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func list[T any](db *bolt.DB, bucket []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return err
			}
			if keep == nil || keep(&v) {
				out = append(out, &v)
			}
			return nil
		})
	})
	return out, err
}

func remove(db *bolt.DB, bucket []byte, id int64) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(itob(id)) == nil {
			return fmt.Errorf("%s %d: %w", bucket, id, ErrNotFound)
		}
		return b.Delete(itob(id))
	})
}

// Plugin operations
func (s *BoltStore) CreatePlugin(plugin *types.Plugin) error {
	now := time.Now().UTC()
	if plugin.CreatedAt.IsZero() {
		plugin.CreatedAt = now
	}
	plugin.UpdatedAt = now
	return insert(s.db, bucketPlugins, &plugin.ID, plugin)
}

func (s *BoltStore) GetPlugin(id int64) (*types.Plugin, error) {
	return get[types.Plugin](s.db, bucketPlugins, id)
}

func (s *BoltStore) ListPlugins() ([]*types.Plugin, error) {
	return list[types.Plugin](s.db, bucketPlugins, nil)
}

func (s *BoltStore) ListPluginsByUser(userID int64) ([]*types.Plugin, error) {
	return list(s.db, bucketPlugins, func(p *types.Plugin) bool { return p.UserID == userID })
}

func (s *BoltStore) UpdatePlugin(plugin *types.Plugin) error {
	plugin.UpdatedAt = time.Now().UTC()
	return replace(s.db, bucketPlugins, plugin.ID, plugin)
}

func (s *BoltStore) DeletePlugin(id int64) error {
	return remove(s.db, bucketPlugins, id)
}

// Instance operations
func (s *BoltStore) CreateInstance(instance *types.Instance) error {
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = time.Now().UTC()
	}
	return insert(s.db, bucketInstances, &instance.ID, instance)
}

func (s *BoltStore) GetInstance(id int64) (*types.Instance, error) {
	return get[types.Instance](s.db, bucketInstances, id)
}

func (s *BoltStore) ListInstances() ([]*types.Instance, error) {
	return list[types.Instance](s.db, bucketInstances, nil)
}

func (s *BoltStore) ListInstancesByUser(userID int64) ([]*types.Instance, error) {
	return list(s.db, bucketInstances, func(i *types.Instance) bool { return i.UserID == userID })
}

func (s *BoltStore) ListInstancesByType(t types.PluginType) ([]*types.Instance, error) {
	return list(s.db, bucketInstances, func(i *types.Instance) bool { return i.Type == t })
}

// DeleteInstance removes an instance together with its alert thresholds
func (s *BoltStore) DeleteInstance(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		if b.Get(itob(id)) == nil {
			return fmt.Errorf("%s %d: %w", bucketInstances, id, ErrNotFound)
		}
		if err := b.Delete(itob(id)); err != nil {
			return err
		}

		alerts := tx.Bucket(bucketAlerts)
		var stale [][]byte
		err := alerts.ForEach(func(k, data []byte) error {
			var t types.AlertThreshold
			if err := json.Unmarshal(data, &t); err != nil {
				return err
			}
			if t.InstanceID == id {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := alerts.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Alert threshold operations
func (s *BoltStore) CreateAlertThreshold(threshold *types.AlertThreshold) error {
	if threshold.CreatedAt.IsZero() {
		threshold.CreatedAt = time.Now().UTC()
	}
	return insert(s.db, bucketAlerts, &threshold.ID, threshold)
}

func (s *BoltStore) ListAlertThresholds() ([]*types.AlertThreshold, error) {
	return list[types.AlertThreshold](s.db, bucketAlerts, nil)
}

func (s *BoltStore) ListAlertThresholdsByInstance(instanceID int64) ([]*types.AlertThreshold, error) {
	return list(s.db, bucketAlerts, func(t *types.AlertThreshold) bool { return t.InstanceID == instanceID })
}

func (s *BoltStore) DeleteAlertThreshold(id int64) error {
	return remove(s.db, bucketAlerts, id)
}
