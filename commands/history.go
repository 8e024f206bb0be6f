package commands

import (
	"context"
	"fmt"
	"time"

	"qnet/config"
	"qnet/datastore/leveldb"

	log "github.com/sirupsen/logrus"
)

// RunHistory prints the messages received by previous serve sessions
func RunHistory(ctx context.Context, cfg *config.Config, last uint64) {
	mlog, err := leveldb.NewMessageLog(cfg.DataStore.MessageLogPath)
	if err != nil {
		log.Fatalf("Failed to open message log: %v", err)
	}
	defer mlog.Close()

	seq := mlog.GetSeq()
	var start uint64 = 1
	if last > 0 && seq > last {
		start = seq - last + 1
	}

	recs, err := mlog.EnumerateBySeq(start, seq+1)
	if err != nil {
		log.Errorf("Failed to enumerate message log: %v", err)
		return
	}

	log.Infof("Message log: %d messages, showing %d", seq, len(recs))
	for _, r := range recs {
		fmt.Printf("%6d  %s  %-14s %s\n", r.SequenceNumber, r.ReceivedAt.Format(time.DateTime), r.SenderID, r.Payload)
	}
}
