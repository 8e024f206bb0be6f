package leveldb

import (
	"fmt"

	"qnet/datamodel/message"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixSeq = "MSG" // Message record indexed by local sequence number. Followed by a 16-digit hexadecimal sequence number (64 bit)
)

var _ message.MessageLog = (*MessageLog)(nil)

type MessageLog struct {
	LevelDB
	seq uint64
}

func NewMessageLog(path string) (*MessageLog, error) {
	// Open the underlying database
	ldb, err := openDB(path)
	if err != nil {
		return nil, err
	}

	// Scan the database to identify the sequence
	iter := ldb.NewIterator(util.BytesPrefix([]byte(keyPrefixSeq)), nil)
	defer iter.Release()

	var maxSeq uint64 = 0
	if iter.Last() {
		seq, err := seqFromKey(iter.Key())
		if err != nil {
			ldb.Close()
			return nil, err
		}
		maxSeq = seq
	}

	return &MessageLog{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
		seq: maxSeq,
	}, nil
}

func (l *MessageLog) Append(rec *message.Record) (*message.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	newSeq := l.seq + 1

	// Copy the record for writing
	r := &message.Record{
		SequenceNumber: newSeq,
		SenderID:       rec.SenderID,
		Payload:        rec.Payload,
		ReceivedAt:     rec.ReceivedAt,
	}

	raw, err := cbor.Marshal(r)
	if err != nil {
		return nil, err
	}

	if err := l.db.Put(keyFromSeq(newSeq), raw, nil); err != nil {
		return nil, err
	}

	// Keep the last sequence number
	l.seq = newSeq

	return r, nil
}

func (l *MessageLog) EnumerateBySeq(start uint64, end uint64) ([]*message.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start > end {
		return nil, fmt.Errorf("EnumerateBySeq: invalid range: start (%d) > end (%d)", start, end)
	}

	var results []*message.Record

	// Create an iterator for the range of sequence numbers
	iter := l.db.NewIterator(&util.Range{Start: keyFromSeq(start), Limit: keyFromSeq(end)}, nil)
	defer iter.Release()

	for iter.Next() {
		rec := &message.Record{}
		if err := cbor.Unmarshal(iter.Value(), rec); err != nil {
			return nil, err
		}

		// Compare the Sequence Number just in case
		seq, err := seqFromKey(iter.Key())
		if err != nil || seq != rec.SequenceNumber {
			log.Errorf("EnumerateBySeq: Sequence Number mismatch at key %q: %d", iter.Key(), rec.SequenceNumber)
			return nil, ErrCorrupted
		}

		results = append(results, rec)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}

func (l *MessageLog) GetSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
