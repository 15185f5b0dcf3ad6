// Package codecache persists selected machine code per function so an
// unchanged function is not re-run through liveness, allocation and
// selection.
package codecache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"golang.org/x/crypto/blake2b"

	"github.com/colorfulnotion/lirx64/asm"
	"github.com/colorfulnotion/lirx64/log"
	"github.com/colorfulnotion/lirx64/symbols"
)

// formatVersion is mixed into every key; bump it when the selector's output
// for the same input changes.
const formatVersion = "lirx64/1"

// Key addresses one compiled function.
type Key [32]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// KeyFor hashes the printed function together with the calling convention
// it was compiled for.
func KeyFor(funcText, ccName string) Key {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(formatVersion))
	h.Write([]byte{0})
	h.Write([]byte(ccName))
	h.Write([]byte{0})
	h.Write([]byte(funcText))
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// Reloc is a relocation with its symbol stored by name; symbol handles are
// only meaningful within one table.
type Reloc struct {
	Offset uint32        `json:"offset"`
	Symbol string        `json:"symbol"`
	Type   asm.RelocType `json:"type"`
	Addend int64         `json:"addend"`
}

// Entry is the cached result of compiling one function.
type Entry struct {
	Code   []byte  `json:"code"`
	Relocs []Reloc `json:"relocs"`
	Spills int     `json:"spills"`
	Frame  int     `json:"frame"`
}

// NewEntry converts selected code for storage.
func NewEntry(code *asm.Code, syms *symbols.Table) *Entry {
	e := &Entry{Code: append([]byte(nil), code.Bytes...)}
	for _, r := range code.Relocs {
		e.Relocs = append(e.Relocs, Reloc{Offset: r.Offset, Symbol: syms.Name(r.Symbol), Type: r.Type, Addend: r.Addend})
	}
	return e
}

// Rebind rebinds the entry's relocations to syms. Names not yet in the table
// are interned as external.
func (e *Entry) Rebind(syms *symbols.Table) *asm.Code {
	code := &asm.Code{Bytes: append([]byte(nil), e.Code...)}
	for _, r := range e.Relocs {
		code.Relocs = append(code.Relocs, asm.Relocation{
			Offset: r.Offset,
			Symbol: syms.Intern(r.Symbol, symbols.External),
			Type:   r.Type,
			Addend: r.Addend,
		})
	}
	return code
}

// Cache wraps LevelDB. Values are JSON entries, lz4 compressed.
type Cache struct {
	db     *leveldb.DB
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Open opens or creates the cache under dir; an empty dir keeps it in
// memory.
func Open(dir string) (*Cache, error) {
	var db *leveldb.DB
	var err error
	if dir == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(dir, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open code cache at %q: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Get returns (nil, false, nil) on a miss. Values that fail to decode are
// deleted and reported as misses.
func (c *Cache) Get(key Key) (*Entry, bool, error) {
	raw, err := c.db.Get(key[:], nil)
	if err == leveldb.ErrNotFound {
		c.misses.Add(1)
		log.Trace(log.CacheMonitoring, "miss", "key", key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Get %s: %w", key, err)
	}
	var e Entry
	plain, err := decompress(raw)
	if err == nil {
		err = json.Unmarshal(plain, &e)
	}
	if err != nil {
		// a damaged value is recompiled and overwritten
		c.misses.Add(1)
		log.Warn(log.CacheMonitoring, "dropping corrupt entry", "key", key, "err", err)
		if derr := c.db.Delete(key[:], nil); derr != nil {
			return nil, false, fmt.Errorf("Get %s: %w", key, derr)
		}
		return nil, false, nil
	}
	c.hits.Add(1)
	log.Trace(log.CacheMonitoring, "hit", "key", key, "bytes", len(e.Code))
	return &e, true, nil
}

func (c *Cache) Put(key Key, e *Entry) error {
	plain, err := json.Marshal(e)
	if err != nil {
		return err
	}
	packed, err := compress(plain)
	if err != nil {
		return err
	}
	log.Trace(log.CacheMonitoring, "put", "key", key, "json", len(plain), "stored", len(packed))
	return c.db.Put(key[:], packed, nil)
}

func (c *Cache) Delete(key Key) error {
	return c.db.Delete(key[:], nil)
}

// Stats reports hits and misses since Open.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len counts the stored entries.
func (c *Cache) Len() (int, error) {
	iter := c.db.NewIterator(nil, nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (c *Cache) Close() error {
	return c.db.Close()
}
