// Package signals persists published trade signals in a WAL so the status
// server can replay them and restarts lose nothing.
package signals

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/signalpipe/signalpipe/internal/domain"
)

const (
	segmentLimit = 100
	maxSegments  = 10

	signalKeyPrefix = "signal_"
)

// Record a journaled signal with its WAL index.
type Record struct {
	Index  uint64             `json:"index"`
	Signal domain.TradeSignal `json:"signal"`
}

// WALStore persists published signals in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed signal journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "signal_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init signal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save journals a published signal.
func (s *WALStore) Save(sig *domain.TradeSignal) error {
	if s == nil || s.wal == nil {
		return errors.New("signal store is not initialized")
	}
	if sig == nil || sig.ID == "" {
		return errors.New("signal id is required")
	}

	payload, err := json.Marshal(sig)
	if err != nil {
		return errors.Wrap(err, "marshal signal")
	}

	key := fmt.Sprintf("%s%s", signalKeyPrefix, sig.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// SignalsAfter returns all signals journaled after the provided WAL index.
func (s *WALStore) SignalsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("signal store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, signalKeyPrefix) {
			continue
		}

		var sig domain.TradeSignal
		if err := json.Unmarshal(payload, &sig); err != nil {
			return nil, errors.Wrap(err, "decode signal")
		}
		records = append(records, Record{Index: idx, Signal: sig})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("signal store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
