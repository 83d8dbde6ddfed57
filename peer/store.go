package peer

import (
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// BondRecord is one persisted bond, keyed by address in the store file.
type BondRecord struct {
	Addr    string `json:"addr"`
	Name    string `json:"name,omitempty"`
	Key     string `json:"key"`
	KeyType byte   `json:"keyType"`
	LEKey   string `json:"leKey,omitempty"`
}

// BondStore persists bonds to a JSON file. The whole file is rewritten
// on every change; bond sets are small.
type BondStore struct {
	filename string
	lock     sync.RWMutex
}

// NewBondStore uses the given file, which need not exist yet.
func NewBondStore(filename string) *BondStore {
	return &BondStore{filename: filename}
}

// Load returns all stored bonds. A missing file is an empty store.
func (bs *BondStore) Load() (map[string]BondRecord, error) {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	return bs.loadExisting()
}

// Save replaces the store contents.
func (bs *BondStore) Save(records map[string]BondRecord) error {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	out, err := jsoniter.Marshal(records)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(bs.filename, out, 0600)
}

// Clear removes the store file.
func (bs *BondStore) Clear() error {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	err := os.Remove(bs.filename)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (bs *BondStore) loadExisting() (map[string]BondRecord, error) {
	_, err := os.Stat(bs.filename)
	if os.IsNotExist(err) {
		return map[string]BondRecord{}, nil
	}

	in, err := ioutil.ReadFile(bs.filename)
	if err != nil {
		return nil, err
	}

	var records map[string]BondRecord
	err = jsoniter.Unmarshal(in, &records)
	if err != nil {
		return nil, err
	}

	return records, nil
}
