package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"steward/internal/metrics"

	"go.uber.org/zap"
)

// Backend persists the whole settings document as one JSON blob.
// Load returns nil data when nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

type Options struct {
	Defaults   Record
	StrictKeys bool
	Logger     *zap.Logger
}

// Store maps guild IDs to settings records. A single mutex serialises every
// operation for every guild, and each mutation is written through to the
// backend before the lock is released.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	defaults Record
	strict   bool
	logger   *zap.Logger
	guilds   map[string]Record
}

func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:  backend,
		defaults: opts.Defaults.clone(),
		strict:   opts.StrictKeys,
		logger:   logger,
		guilds:   make(map[string]Record),
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Defaults returns the record new guilds start with.
func (s *Store) Defaults() Record {
	return s.defaults.clone()
}

// Reload replaces the in-memory mapping with the backend's document. A
// malformed document is treated as empty.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.guilds = s.decode(data)
	metrics.GuildsTracked.Set(float64(len(s.guilds)))
	return nil
}

// Get returns the guild's record, creating and persisting the default
// record on first access.
func (s *Store) Get(ctx context.Context, guildID string) (Record, error) {
	if guildID == "" {
		return Record{}, ErrEmptyGuildID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.guilds[guildID]; ok {
		return record.clone(), nil
	}
	record := s.defaults.clone()
	s.guilds[guildID] = record
	if err := s.persist(ctx); err != nil {
		delete(s.guilds, guildID)
		return Record{}, err
	}
	metrics.GuildsTracked.Set(float64(len(s.guilds)))
	return record.clone(), nil
}

// Update sets key to value on the guild's record and persists the whole
// document. On error the in-memory record is left as it was.
func (s *Store) Update(ctx context.Context, guildID, key string, value any) error {
	if guildID == "" {
		return ErrEmptyGuildID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.guilds[guildID]
	record := s.defaults.clone()
	if existed {
		record = previous.clone()
	}
	if err := record.set(key, value, s.strict); err != nil {
		return err
	}

	s.guilds[guildID] = record
	if err := s.persist(ctx); err != nil {
		if existed {
			s.guilds[guildID] = previous
		} else {
			delete(s.guilds, guildID)
		}
		return err
	}
	metrics.GuildsTracked.Set(float64(len(s.guilds)))
	s.logger.Debug("guild setting updated", zap.String("guild_id", guildID), zap.String("key", key))
	return nil
}

// GetSetting returns the value stored under key, or fallback when the key is
// absent or the record cannot be loaded.
func (s *Store) GetSetting(ctx context.Context, guildID, key string, fallback any) any {
	record, err := s.Get(ctx, guildID)
	if err != nil {
		s.logger.Warn("guild settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		return fallback
	}
	if value, ok := record.Value(key); ok {
		return value
	}
	return fallback
}

// Guilds returns the IDs of every guild with a record, sorted.
func (s *Store) Guilds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) persist(ctx context.Context) error {
	data, err := json.MarshalIndent(s.guilds, "", "  ")
	if err == nil {
		err = s.backend.Save(ctx, data)
	}
	metrics.SettingsWritesTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store) decode(data []byte) map[string]Record {
	guilds := make(map[string]Record)
	if len(data) == 0 {
		return guilds
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("settings document malformed, starting empty", zap.Error(err))
		return guilds
	}
	for guildID, entry := range raw {
		var fields map[string]any
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			s.logger.Warn("skipping malformed guild record",
				zap.String("guild_id", guildID),
				zap.Error(err))
			continue
		}
		record := s.defaults.clone()
		for key, value := range fields {
			if err := record.set(key, value, false); err != nil {
				s.logger.Warn("ignoring stored setting",
					zap.String("guild_id", guildID),
					zap.String("key", key),
					zap.Error(err))
			}
		}
		guilds[guildID] = record
	}
	return guilds
}
