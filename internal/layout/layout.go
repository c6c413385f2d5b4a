// Package layout saves and restores the card order across sessions.
package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"solara/internal/grid"
	appLog "solara/internal/log"
	"solara/internal/storage"
)

// Key is the storage key holding the snapshot.
const Key = "solaraLayout"

// KV is the storage the persister writes to. *storage.Store implements it;
// Get must return storage.ErrNotFound for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Snapshot is the ordered list of card inner contents. It is stored as a
// plain JSON array of strings.
type Snapshot []string

// Persister reads and writes snapshots.
type Persister struct {
	kv  KV
	key string

	// OnSave, if set, is called with the result of every save.
	OnSave func(err error)
}

// New returns a persister storing under Key.
func New(kv KV) *Persister {
	return &Persister{kv: kv, key: Key}
}

// Save overwrites the stored snapshot. A storage failure is logged and
// returned; the previously stored value is left as it was.
func (p *Persister) Save(ctx context.Context, snap Snapshot) error {
	if snap == nil {
		snap = Snapshot{}
	}
	data, err := encode(snap)
	if err != nil {
		return fmt.Errorf("layout: encode: %w", err)
	}
	err = p.kv.Set(ctx, p.key, data)
	if err != nil {
		appLog.Error("layout: save failed", err, "cards", len(snap))
		err = fmt.Errorf("layout: save: %w", err)
	} else {
		appLog.Debug("layout: saved", "cards", len(snap))
	}
	if p.OnSave != nil {
		p.OnSave(err)
	}
	return err
}

// encode writes snap as a compact JSON array with markup left unescaped,
// the same bytes a browser's JSON.stringify produces.
func encode(snap Snapshot) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Load returns the stored snapshot. ok is false when nothing is stored or
// the stored value cannot be decoded; the latter is logged, not returned.
func (p *Persister) Load(ctx context.Context) (snap Snapshot, ok bool, err error) {
	raw, err := p.kv.Get(ctx, p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("layout: load: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		appLog.Warn("layout: ignoring malformed snapshot", "err", err.Error())
		return nil, false, nil
	}
	return snap, true, nil
}

// Restore reorders the engine's cards to follow snap. Each entry is
// matched to the first unused card with the same content; entries with no
// matching card are skipped and cards absent from snap keep their relative
// order after the matched ones.
func Restore(e *grid.Engine, snap Snapshot) error {
	if len(snap) == 0 {
		return nil
	}
	cards := e.Cards()
	used := make([]bool, len(cards))
	ids := make([]string, 0, len(cards))
	for _, content := range snap {
		for i, c := range cards {
			if !used[i] && c.Content == content {
				used[i] = true
				ids = append(ids, c.ID)
				break
			}
		}
	}
	if skipped := len(snap) - len(ids); skipped > 0 {
		appLog.Info("layout: snapshot entries without a card", "skipped", skipped)
	}
	return e.Reorder(ids)
}

// Attach saves a snapshot after every committed drag and returns the func
// that stops it. Saves run on the dispatching goroutine with timeout.
func Attach(e *grid.Engine, p *Persister, timeout time.Duration) func() {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return e.Subscribe(func(ev grid.Event) {
		if ev.Type != grid.EventDragEnd {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = p.Save(ctx, Snapshot(e.Snapshot()))
	})
}

// RestoreSaved loads the stored snapshot and applies it. Missing or
// unreadable state leaves the markup order in place.
func RestoreSaved(ctx context.Context, e *grid.Engine, p *Persister) error {
	snap, ok, err := p.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := Restore(e, snap); err != nil && !errors.Is(err, grid.ErrNotReady) {
		return fmt.Errorf("layout: restore: %w", err)
	}
	return nil
}
