package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/store"
)

// ErrNotFound is returned when a record does not exist in the dataset.
var ErrNotFound = errors.New("not found")

const writeThroughTimeout = 5 * time.Second

// DataService owns the in-memory dataset shared by every other service and
// keeps it in step with the stores.
//
// Writes go to the local cache first and then to the remote store. The first
// remote write or load that finds the remote unreachable switches the service
// to local mode for the rest of the process lifetime. Pushes from the remote
// replace whole collections; last writer wins. In local mode the service
// follows the local cache instead, so instances sharing one Redis see each
// other's writes.
type DataService struct {
	local  store.Repository
	remote store.Repository
	cloud  atomic.Bool
	log    zerolog.Logger

	// writeMu serializes read-modify-write cycles.
	writeMu sync.Mutex

	mu       sync.RWMutex
	data     store.Dataset
	unsub    store.Unsubscribe
	watchCtx context.Context
	closed   bool
}

// NewDataService creates a DataService. remote may be nil to run from the
// local cache only.
func NewDataService(local, remote store.Repository, log zerolog.Logger) *DataService {
	s := &DataService{
		local:  local,
		remote: remote,
		log:    log.With().Str("component", "data_service").Logger(),
	}
	s.cloud.Store(remote != nil)
	return s
}

// Load fills the dataset. Each collection comes from the remote store when it
// has one, else from the local cache. Remote values are written through to the
// local cache so the next offline start sees them.
func (s *DataService) Load(ctx context.Context) error {
	localSnap, err := s.local.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Local cache load failed, starting empty")
		localSnap = store.Snapshot{}
	}

	var remoteSnap store.Snapshot
	if s.Cloud() {
		remoteSnap, err = s.remote.Load(ctx)
		if err != nil {
			s.remoteFailed("load", err)
			remoteSnap = nil
		}
	}

	merged := make(store.Snapshot, len(store.Keys))
	for _, key := range store.Keys {
		if raw, ok := remoteSnap[key]; ok && len(raw) > 0 {
			merged[key] = raw
			if _, err := s.local.Save(ctx, key, raw); err != nil {
				s.log.Warn().Err(err).Str("key", string(key)).Msg("Write-through to local cache failed")
			}
			continue
		}
		if raw, ok := localSnap[key]; ok {
			merged[key] = raw
		}
	}

	var ds store.Dataset
	if err := ds.Decode(merged); err != nil {
		return fmt.Errorf("decode dataset: %w", err)
	}

	s.mu.Lock()
	s.data = ds
	s.mu.Unlock()

	s.log.Info().
		Str("mode", string(s.Mode())).
		Int("exams", len(ds.Exams)).
		Int("results", len(ds.Results)).
		Int("students", len(ds.Students)).
		Int("submissions", len(ds.Submissions)).
		Msg("Dataset loaded")
	return nil
}

// Watch subscribes to changes made by other instances: the remote store in
// cloud mode, the local cache otherwise. A later switch to local mode moves
// the subscription to the local cache.
func (s *DataService) Watch(ctx context.Context) error {
	s.mu.Lock()
	s.watchCtx = ctx
	s.mu.Unlock()

	if !s.Cloud() {
		return s.followLocal(ctx)
	}

	unsub, err := s.remote.Subscribe(ctx, s.apply)
	if err != nil {
		// Moves to the local feed when the remote is unreachable.
		s.remoteFailed("subscribe", err)
		return nil
	}
	s.setFeed(unsub)
	s.log.Info().Msg("Watching remote changes")
	return nil
}

func (s *DataService) followLocal(ctx context.Context) error {
	unsub, err := s.local.Subscribe(ctx, func(snap store.Snapshot) { s.merge(snap) })
	if err != nil {
		return fmt.Errorf("subscribe local cache: %w", err)
	}
	s.setFeed(unsub)
	s.log.Info().Msg("Watching local cache changes")
	return nil
}

// setFeed replaces the active subscription. After Close the new one is
// stopped right away.
func (s *DataService) setFeed(unsub store.Unsubscribe) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return
	}
	old := s.unsub
	s.unsub = unsub
	s.mu.Unlock()

	if old != nil {
		old()
	}
}

// apply merges a remote push into the dataset and writes it through to the
// local cache.
func (s *DataService) apply(snap store.Snapshot) {
	if !s.merge(snap) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeThroughTimeout)
	defer cancel()

	for key, raw := range snap {
		if !key.Valid() {
			continue
		}
		if _, err := s.local.Save(ctx, key, raw); err != nil {
			s.log.Warn().Err(err).Str("key", string(key)).Msg("Write-through to local cache failed")
		}
		s.log.Debug().Str("key", string(key)).Msg("Remote change applied")
	}
}

// merge replaces the collections present in snap. Local cache changes go
// through merge only: writing them back would announce them again.
func (s *DataService) merge(snap store.Snapshot) bool {
	var incoming store.Dataset
	if err := incoming.Decode(snap); err != nil {
		s.log.Error().Err(err).Msg("Discarding malformed change")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, raw := range snap {
		if !key.Valid() || len(raw) == 0 || string(raw) == "null" {
			continue
		}
		s.data.Take(key, &incoming)
	}
	return true
}

// View returns a copy of the dataset. Callers may modify the returned slices
// but not the records they share with the service.
func (s *DataService) View() store.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Update runs mutate on a copy of the dataset and persists the named keys.
// Nothing is committed when mutate returns an error. The returned mode is
// local if any key missed the remote store.
func (s *DataService) Update(ctx context.Context, mutate func(d *store.Dataset) error, keys ...store.Key) (store.Mode, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	working := s.View()
	if err := mutate(&working); err != nil {
		return "", err
	}

	mode := store.ModeCloud
	for _, key := range keys {
		ack, err := s.save(ctx, key, working.Value(key))
		if err != nil {
			return "", err
		}
		if ack.Mode == store.ModeLocal {
			mode = store.ModeLocal
		}
	}

	s.mu.Lock()
	for _, key := range keys {
		s.data.Take(key, &working)
	}
	s.mu.Unlock()
	return mode, nil
}

// Restore replaces the whole dataset, as done when importing a backup.
func (s *DataService) Restore(ctx context.Context, ds store.Dataset) (store.Mode, error) {
	return s.Update(ctx, func(d *store.Dataset) error {
		*d = ds
		return nil
	}, store.Keys...)
}

// Export encodes the whole dataset.
func (s *DataService) Export() (store.Snapshot, error) {
	ds := s.View()
	return ds.Snapshot()
}

func (s *DataService) save(ctx context.Context, key store.Key, value any) (store.Ack, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return store.Ack{}, fmt.Errorf("encode %s: %w", key, err)
	}

	ack, localErr := s.local.Save(ctx, key, json.RawMessage(raw))
	if localErr != nil {
		s.log.Warn().Err(localErr).Str("key", string(key)).Msg("Local cache save failed")
	}

	if !s.Cloud() {
		if localErr != nil {
			return store.Ack{}, fmt.Errorf("save %s: %w", key, localErr)
		}
		return ack, nil
	}

	remoteAck, err := s.remote.Save(ctx, key, json.RawMessage(raw))
	if err != nil {
		s.remoteFailed("save", err)
		if localErr != nil {
			return store.Ack{}, fmt.Errorf("save %s: %w", key, errors.Join(localErr, err))
		}
		return store.Ack{Key: key, Mode: store.ModeLocal}, nil
	}
	return remoteAck, nil
}

func (s *DataService) remoteFailed(op string, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		if s.cloud.CompareAndSwap(true, false) {
			s.log.Warn().Err(err).Str("op", op).Msg("Remote store unreachable, switching to local mode")
			s.mu.RLock()
			ctx := s.watchCtx
			s.mu.RUnlock()
			if ctx != nil {
				// The caller may be the remote listener, which the switch stops.
				go func() {
					if err := s.followLocal(ctx); err != nil {
						s.log.Warn().Err(err).Msg("Local cache change feed unavailable")
					}
				}()
			}
		}
		return
	}
	s.log.Error().Err(err).Str("op", op).Msg("Remote store rejected request")
}

// Cloud reports whether the remote store is in use.
func (s *DataService) Cloud() bool {
	return s.remote != nil && s.cloud.Load()
}

// Mode reports where writes currently go.
func (s *DataService) Mode() store.Mode {
	if s.Cloud() {
		return store.ModeCloud
	}
	return store.ModeLocal
}

// Close stops the change subscription.
func (s *DataService) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.closed = true
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
