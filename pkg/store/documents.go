package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/protocol"
)

const collectionPrefix = "collection/"

// SaveOptions controls side effects of Documents.Save.
type SaveOptions struct {
	// SkipBroadcast suppresses change hooks. Set for data that arrived from
	// the network so it is never echoed back.
	SkipBroadcast bool
}

// ChangeFunc observes locally originated collection writes.
type ChangeFunc func(name string, data json.RawMessage)

// Documents stores named JSON collections (pages, posts, settings, ...) on a KV.
type Documents struct {
	kv     KV
	logger *logging.ColoredLogger

	mu    sync.RWMutex
	hooks []ChangeFunc
}

func NewDocuments(kv KV, logger *logging.ColoredLogger) *Documents {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Documents{kv: kv, logger: logger}
}

// OnChange registers fn for every Save without SkipBroadcast.
func (d *Documents) OnChange(fn ChangeFunc) {
	d.mu.Lock()
	d.hooks = append(d.hooks, fn)
	d.mu.Unlock()
}

// Save writes a collection.
func (d *Documents) Save(ctx context.Context, name string, data json.RawMessage, opts SaveOptions) error {
	if name == "" {
		return errors.NewValidationError("name", "collection name is required", name)
	}
	if !json.Valid(data) {
		return errors.NewValidationError("data", "collection data must be valid JSON", name)
	}
	if err := d.kv.Set(ctx, collectionPrefix+name, data); err != nil {
		return err
	}
	if opts.SkipBroadcast {
		return nil
	}

	d.mu.RLock()
	hooks := append([]ChangeFunc(nil), d.hooks...)
	d.mu.RUnlock()
	for _, fn := range hooks {
		fn(name, data)
	}
	return nil
}

// Load reads a collection.
func (d *Documents) Load(ctx context.Context, name string) (json.RawMessage, error) {
	b, err := d.kv.Get(ctx, collectionPrefix+name)
	if errors.IsNotFound(err) {
		return nil, errors.NewNotFoundError("collection", name)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// Snapshot returns every stored collection.
func (d *Documents) Snapshot(ctx context.Context) (protocol.State, error) {
	keys, err := d.kv.Keys(ctx, collectionPrefix)
	if err != nil {
		return nil, err
	}
	state := make(protocol.State, len(keys))
	for _, k := range keys {
		b, err := d.kv.Get(ctx, k)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		state[strings.TrimPrefix(k, collectionPrefix)] = json.RawMessage(b)
	}
	return state, nil
}

// ApplySnapshot overwrites every collection present in state without firing
// change hooks. Collections absent from state are left alone.
func (d *Documents) ApplySnapshot(ctx context.Context, state protocol.State) error {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := d.Save(ctx, name, state[name], SaveOptions{SkipBroadcast: true}); err != nil {
			return errors.Wrapf(err, "apply collection %s", name)
		}
	}
	d.logger.ComponentInfo(logging.ComponentStore, "Snapshot applied", zap.Int("collections", len(names)))
	return nil
}
