package store

import (
	"errors"
	"log/slog"
	"sync"

	"paradox-go-home/internal/state"
)

// RestoreLabels copies every cached label into the entity store and returns
// how many were applied. Labels outside the configured counts are skipped.
func RestoreLabels(s Store, st *state.Store) (int, error) {
	applied := 0
	for _, kind := range labelKinds {
		labels, err := s.ListLabels(kind)
		if err != nil {
			return applied, err
		}
		for _, l := range labels {
			if err := st.SetLabel(kind, l.Number, l.Label); err != nil {
				continue
			}
			applied++
		}
	}
	return applied, nil
}

// IdentityRecorder persists the panel identity whenever the panel id
// changes. Handle runs on the bus; the write happens on the recorder's own
// goroutine.
type IdentityRecorder struct {
	store  Store
	st     *state.Store
	logger *slog.Logger

	queue    chan *PanelRecord
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewIdentityRecorder starts the writer. Close it before closing s.
func NewIdentityRecorder(s Store, st *state.Store, logger *slog.Logger) *IdentityRecorder {
	r := &IdentityRecorder{
		store:   s,
		st:      st,
		logger:  logger,
		queue:   make(chan *PanelRecord, 8),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.run()
	return r
}

// Handle is the bus handler.
func (r *IdentityRecorder) Handle(ev state.Event) {
	c, ok := ev.Data.(state.Change)
	if !ok || c.Kind != state.KindPanel || c.Property != state.PanelID.String() {
		return
	}
	id := r.st.Snapshot().Panel.Identity
	if id == nil {
		return
	}
	rec := &PanelRecord{
		PanelID:          id.ID,
		Name:             id.Name,
		FirmwareVersion:  id.FirmwareVersion,
		FirmwareRevision: id.FirmwareRevision,
		FirmwareBuild:    id.FirmwareBuild,
		SeenAt:           c.Time,
	}
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("panel identity queue full, dropping record", "panel_id", rec.PanelID)
	}
}

func (r *IdentityRecorder) run() {
	defer close(r.stopped)
	for {
		select {
		case rec := <-r.queue:
			r.save(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.queue:
					r.save(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *IdentityRecorder) save(rec *PanelRecord) {
	if err := r.store.SavePanel(rec); err != nil {
		r.logger.Warn("persist panel identity failed", "panel_id", rec.PanelID, "err", err)
	}
}

// Close writes what is queued and stops the writer.
func (r *IdentityRecorder) Close() {
	r.stopOnce.Do(func() { close(r.done) })
	<-r.stopped
}

// LastPanel returns the cached identity, or nil when none was recorded.
func LastPanel(s Store) (*PanelRecord, error) {
	p, err := s.GetPanel()
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}
