package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"arcadeswap/storage"
)

// Manager provides RLP-encoded key/value access over a backing database with
// an in-memory journal. Writes stay pending until Commit; Snapshot and
// RevertToSnapshot allow an operation to be rolled back as a unit, including
// any nested operations it triggered.
type Manager struct {
	db      storage.Database
	dirty   map[string]pendingValue
	journal []journalEntry
}

type pendingValue struct {
	data    []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    pendingValue
	hadPrev bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]pendingValue)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write recorded after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		panic(fmt.Sprintf("state: invalid snapshot %d (journal length %d)", id, len(m.journal)))
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Pending reports the number of keys awaiting Commit.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

// Commit flushes pending writes to the database and clears the journal. When
// the database supports batches the flush is atomic.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if batcher, ok := m.db.(storage.Batcher); ok {
		puts := make(map[string][]byte, len(keys))
		var deletes []string
		for _, k := range keys {
			v := m.dirty[k]
			if v.deleted {
				deletes = append(deletes, k)
				continue
			}
			puts[k] = v.data
		}
		if err := batcher.WriteBatch(puts, deletes); err != nil {
			return fmt.Errorf("state: commit batch: %w", err)
		}
	} else {
		for _, k := range keys {
			v := m.dirty[k]
			var err error
			if v.deleted {
				err = m.db.Delete([]byte(k))
			} else {
				err = m.db.Put([]byte(k), v.data)
			}
			if err != nil {
				return fmt.Errorf("state: commit %x: %w", k, err)
			}
		}
	}
	m.dirty = make(map[string]pendingValue)
	m.journal = m.journal[:0]
	return nil
}

// Discard drops all pending writes.
func (m *Manager) Discard() {
	m.dirty = make(map[string]pendingValue)
	m.journal = m.journal[:0]
}

func (m *Manager) set(hashed []byte, v pendingValue) {
	k := string(hashed)
	prev, ok := m.dirty[k]
	m.journal = append(m.journal, journalEntry{key: k, prev: prev, hadPrev: ok})
	m.dirty[k] = v
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if v, ok := m.dirty[string(hashed)]; ok {
		if v.deleted {
			return nil, nil
		}
		return v.data, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.set(kvKey(key), pendingValue{data: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.set(kvKey(key), pendingValue{deleted: true})
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.set(hashed, pendingValue{data: encoded})
	return nil
}

// KVGetList decodes the list stored under key into out, which must point to a
// slice. A missing key yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
