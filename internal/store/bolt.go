package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"paradox-go-home/internal/protocol"
)

var (
	bucketPanel = []byte("panel")
	keyIdentity = []byte("identity")
)

var labelKinds = []protocol.LabelType{
	protocol.LabelZone, protocol.LabelUser, protocol.LabelPartition, protocol.LabelOutput,
}

func labelBucket(kind protocol.LabelType) []byte {
	return []byte("labels_" + kind.String())
}

// labelKey is big-endian so ForEach walks entities in number order.
func labelKey(n int) []byte {
	k := make([]byte, 2)
	binary.BigEndian.PutUint16(k, uint16(n))
	return k
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketPanel}
		for _, k := range labelKinds {
			buckets = append(buckets, labelBucket(k))
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) SaveLabel(kind protocol.LabelType, n int, label string) error {
	if n < 1 || n > 0xFFFF {
		return fmt.Errorf("save label: invalid %s number %d", kind, n)
	}
	name := labelBucket(kind)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if b == nil {
			return fmt.Errorf("bucket %q not found", name)
		}
		data, err := json.Marshal(Label{Kind: kind.String(), Number: n, Label: label, UpdatedAt: s.now()})
		if err != nil {
			return err
		}
		return b.Put(labelKey(n), data)
	})
}

func (s *BoltStore) GetLabel(kind protocol.LabelType, n int) (*Label, error) {
	var l Label
	name := labelBucket(kind)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if b == nil {
			return fmt.Errorf("bucket %q not found", name)
		}
		data := b.Get(labelKey(n))
		if data == nil {
			return fmt.Errorf("%s label %d: %w", kind, n, ErrNotFound)
		}
		return json.Unmarshal(data, &l)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *BoltStore) ListLabels(kind protocol.LabelType) ([]*Label, error) {
	var labels []*Label
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(labelBucket(kind))
		if b == nil {
			return nil // no bucket = no labels
		}
		labels = make([]*Label, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var l Label
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			labels = append(labels, &l)
			return nil
		})
	})
	return labels, err
}

func (s *BoltStore) SavePanel(p *PanelRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPanel)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketPanel)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put(keyIdentity, data)
	})
}

func (s *BoltStore) GetPanel() (*PanelRecord, error) {
	var p PanelRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPanel)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketPanel)
		}
		data := b.Get(keyIdentity)
		if data == nil {
			return fmt.Errorf("panel identity: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
