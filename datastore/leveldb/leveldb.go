// Package leveldb persists the history of received messages.
//
// Every record is CBOR-encoded and stored under "MSG" followed by its local sequence
// number as 16 hex digits, so a key range scan returns messages in arrival order.
package leveldb

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	log "github.com/sirupsen/logrus"
)

// ErrCorrupted is returned when a stored record does not match its key
var ErrCorrupted = errors.New("message log corrupted")

const seqDigits = 16

// LevelDB is the handle shared by the stores in this package
type LevelDB struct {
	path string
	mu   sync.Mutex
	db   *leveldb.DB
}

func keyFromSeq(seq uint64) []byte {
	return fmt.Appendf([]byte(keyPrefixSeq), "%0*x", seqDigits, seq)
}

func seqFromKey(key []byte) (uint64, error) {
	digits, ok := cutPrefix(key, keyPrefixSeq)
	if !ok || len(digits) != seqDigits {
		return 0, fmt.Errorf("seqFromKey: malformed key %q", key)
	}
	return strconv.ParseUint(string(digits), 16, 64)
}

func cutPrefix(key []byte, prefix string) ([]byte, bool) {
	if len(key) < len(prefix) || string(key[:len(prefix)]) != prefix {
		return nil, false
	}
	return key[len(prefix):], true
}

// openDB opens the database at path, creating it if needed. A corrupted
// manifest is recovered rather than reported.
func openDB(path string) (*leveldb.DB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Compression: opt.NoCompression})
	if lerrors.IsCorrupted(err) {
		log.Warnf("Message log at %s is corrupted, recovering", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open message log %s: %w", path, err)
	}

	log.Debugf("Opened message log at %s", path)
	return db, nil
}

func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
