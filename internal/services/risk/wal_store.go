package risk

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	segmentLimit = 100
	maxSegments  = 10

	stateKeyPrefix = "risk_state_"
)

// walStore persists risk state snapshots in a WAL so a restart resumes the
// trading day exactly where it stopped.
type walStore struct {
	wal *gowal.Wal
}

func newWALStore(dir string) (*walStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "risk_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init risk WAL")
	}

	return &walStore{wal: wal}, nil
}

// save appends a full state snapshot. The latest entry is authoritative.
func (s *walStore) save(state *State) error {
	if s == nil || s.wal == nil {
		return errors.New("risk store is not initialized")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal risk state")
	}

	key := fmt.Sprintf("%s%s", stateKeyPrefix, state.Day)
	nextIndex := s.wal.CurrentIndex() + 1

	return s.wal.Write(nextIndex, key, payload)
}

// load returns the most recent persisted state, or nil when the WAL is empty.
func (s *walStore) load() (*State, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("risk store is not initialized")
	}

	current := s.wal.CurrentIndex()
	if current == 0 {
		return nil, nil
	}

	for idx := current; idx >= 1; idx-- {
		_, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}

		var state State
		if err := json.Unmarshal(payload, &state); err != nil {
			return nil, errors.Wrap(err, "decode risk state")
		}
		return &state, nil
	}

	return nil, nil
}

func (s *walStore) close() error {
	if s == nil || s.wal == nil {
		return nil
	}
	return s.wal.Close()
}
