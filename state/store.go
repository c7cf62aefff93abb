package state

import (
	"encoding/binary"

	"github.com/Bromel777/EncryCore/chain"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketBoxes = []byte("boxes")
	bucketMeta  = []byte("meta")

	metaKeyBestVersion = []byte("best_version")
	metaKeyHeight      = []byte("height")
)

// Store is the durable half of the Authenticated State Engine: a bbolt
// database holding the box set of the most recently committed version,
// so a restart does not require replaying the chain from genesis. The
// in-memory rollback window (state.Engine's ring of recent avl.Tree
// snapshots) is not persisted — it is rebuilt naturally as new blocks are
// applied after restart, the same way the teacher's bbolt-backed chainstate
// only ever durably tracked its single current tip.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if absent) a bbolt database at path and
// ensures its buckets exist.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, chain.Newf(chain.Transient, "state store: open: %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketBoxes); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, chain.Newf(chain.Transient, "state store: init buckets: %v", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadBoxes returns every persisted box keyed by id; New replays them into
// an empty tree to rebuild the in-memory dictionary a fresh process needs
// before it can serve Apply.
func (s *Store) LoadBoxes() (map[chain.BoxId][]byte, error) {
	out := make(map[chain.BoxId][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBoxes)
		return b.ForEach(func(k, v []byte) error {
			var id chain.BoxId
			copy(id[:], k)
			out[id] = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, chain.Newf(chain.Transient, "state store: load boxes: %v", err)
	}
	return out, nil
}

// LoadMeta returns the last durably committed version and height, or the
// zero version and PreGenesisHeight if the store has never committed.
func (s *Store) LoadMeta() (chain.VersionTag, chain.Height, error) {
	var version chain.VersionTag
	height := chain.PreGenesisHeight
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if v := b.Get(metaKeyBestVersion); v != nil {
			copy(version[:], v)
		}
		if v := b.Get(metaKeyHeight); v != nil {
			height = chain.Height(int64(binary.LittleEndian.Uint64(v)))
		}
		return nil
	})
	if err != nil {
		return version, chain.PreGenesisHeight, chain.Newf(chain.Transient, "state store: load meta: %v", err)
	}
	return version, height, nil
}

// ApplyDiff durably commits one block's box-set changes and advances the
// meta pointer, all inside one bbolt transaction so a crash mid-write
// never leaves the store half-updated.
func (s *Store) ApplyDiff(put []chain.Box, removed []chain.BoxId, version chain.VersionTag, height chain.Height) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		boxes := tx.Bucket(bucketBoxes)
		for _, id := range removed {
			if err := boxes.Delete(id[:]); err != nil {
				return err
			}
		}
		for _, box := range put {
			id := box.ID()
			if err := boxes.Put(id[:], box.Encode()); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(metaKeyBestVersion, version[:]); err != nil {
			return err
		}
		var hb [8]byte
		binary.LittleEndian.PutUint64(hb[:], uint64(int64(height)))
		return meta.Put(metaKeyHeight, hb[:])
	})
	if err != nil {
		return chain.Newf(chain.Transient, "state store: apply diff: %v", err)
	}
	return nil
}

// Resync overwrites the entire box bucket to match tree's contents,
// needed after a rollback collapses several committed diffs at once and
// incremental undo bookkeeping would otherwise have to be kept besides the
// in-memory tree ring.
func (s *Store) Resync(boxes map[chain.BoxId][]byte, version chain.VersionTag, height chain.Height) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketBoxes); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketBoxes)
		if err != nil {
			return err
		}
		for id, encoded := range boxes {
			if err := b.Put(id[:], encoded); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(metaKeyBestVersion, version[:]); err != nil {
			return err
		}
		var hb [8]byte
		binary.LittleEndian.PutUint64(hb[:], uint64(int64(height)))
		return meta.Put(metaKeyHeight, hb[:])
	})
	if err != nil {
		return chain.Newf(chain.Transient, "state store: resync: %v", err)
	}
	return nil
}
