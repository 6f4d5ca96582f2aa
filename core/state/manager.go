package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokenlock/storage"
)

var (
	// ErrTxActive is returned by Begin when a transaction is already open.
	ErrTxActive = errors.New("state: transaction already active")
	// ErrNoTx is returned by Commit when no transaction is open.
	ErrNoTx = errors.New("state: no active transaction")
)

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Manager reads and writes RLP-encoded records. Between Begin and Commit all
// writes are held in an overlay so a failed command leaves the database
// untouched; Commit flushes them in one atomic batch.
type Manager struct {
	db      storage.Database
	overlay map[string]pendingWrite
	order   []string
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction.
func (m *Manager) Begin() error {
	if m.overlay != nil {
		return ErrTxActive
	}
	m.overlay = make(map[string]pendingWrite)
	m.order = nil
	return nil
}

// InTx reports whether a transaction is open.
func (m *Manager) InTx() bool { return m.overlay != nil }

// Commit writes the overlay atomically and closes the transaction.
func (m *Manager) Commit() error {
	if m.overlay == nil {
		return ErrNoTx
	}
	batch := new(storage.Batch)
	for _, key := range m.order {
		write := m.overlay[key]
		if write.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), write.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.overlay = nil
	m.order = nil
	return nil
}

// Discard drops the overlay and closes the transaction.
func (m *Manager) Discard() {
	m.overlay = nil
	m.order = nil
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if m.overlay != nil {
		if write, ok := m.overlay[string(key)]; ok {
			if write.deleted {
				return nil, nil
			}
			return write.value, nil
		}
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) stage(key []byte, write pendingWrite) {
	k := string(key)
	if _, seen := m.overlay[k]; !seen {
		m.order = append(m.order, k)
	}
	m.overlay[k] = write
}

func (m *Manager) put(key, value []byte) error {
	if m.overlay == nil {
		return m.db.Put(key, value)
	}
	m.stage(key, pendingWrite{value: append([]byte(nil), value...)})
	return nil
}

func (m *Manager) delete(key []byte) error {
	if m.overlay == nil {
		return m.db.Delete(key)
	}
	m.stage(key, pendingWrite{deleted: true})
	return nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(kvKey(key), encoded)
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

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.delete(kvKey(key))
}
