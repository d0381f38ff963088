package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
)

// Store holds the active config; readers always see a complete File.
type Store struct {
	cur atomic.Pointer[File]
}

func NewStore(f *File) *Store {
	s := &Store{}
	s.cur.Store(f)
	return s
}

func (s *Store) Current() *File { return s.cur.Load() }

func (s *Store) Swap(f *File) { s.cur.Store(f) }

// Policy makes Store usable as the controller's policy source.
func (s *Store) Policy() entities.ClimatePolicy { return s.Current().ClimatePolicy() }

// HardLimits makes Store usable as the guardrail's limits source. A Watcher never changes them.
func (s *Store) HardLimits() entities.HardLimits { return s.Current().Limits() }

// Watcher reloads the config file when it changes on disk. Only the climate policy (room,
// crop, stage and stage profiles) is reloaded. Hard limits, cooldowns, ownership and entity ids
// are fixed at startup; a reload that edits them logs a warning and keeps the startup values.
// Edits that fail to parse or validate are logged and the previous config stays active.
type Watcher struct {
	*Store
	path     string
	debounce time.Duration
	reloads  atomic.Int64
	lg       *zap.Logger
}

func NewWatcher(path string, lg *zap.Logger) (*Watcher, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Watcher{
		Store:    NewStore(f),
		path:     path,
		debounce: 200 * time.Millisecond,
		lg:       lg.Named("config"),
	}, nil
}

// Reloads counts successful reloads.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Run blocks until ctx is done. The parent directory is watched so that editors that
// replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.lg.Info("watching config", zap.String("path", w.path))

	target := filepath.Clean(w.path)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.lg.Warn("watch error", zap.Error(err))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	f, err := Load(w.path)
	if err != nil {
		w.lg.Warn("config reload rejected, keeping previous", zap.Error(err))
		return
	}
	prev := w.Current()
	if pinned := startupOnlyChanges(prev, f); len(pinned) > 0 {
		w.lg.Warn("sections only apply after restart, keeping startup values", zap.Strings("sections", pinned))
	}
	next := *prev
	next.Room, next.Crop, next.Stage, next.Stages = f.Room, f.Crop, f.Stage, f.Stages
	w.Swap(&next)
	w.reloads.Add(1)
	w.lg.Info("config reloaded", zap.String("stage", string(next.Stage)))
}

func startupOnlyChanges(prev, next *File) []string {
	var out []string
	if !cmp.Equal(prev.Limits(), next.Limits(), cmpopts.EquateEmpty()) {
		out = append(out, "hard_limits")
	}
	if !cmp.Equal(prev.Cooldowns, next.Cooldowns, cmpopts.EquateEmpty()) {
		out = append(out, "cooldowns")
	}
	if !cmp.Equal(prev.Ownership, next.Ownership, cmpopts.EquateEmpty()) {
		out = append(out, "ownership")
	}
	if prev.Entities != next.Entities {
		out = append(out, "entities")
	}
	return out
}
