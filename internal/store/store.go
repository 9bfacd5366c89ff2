// Package store persists harvested labels and the last known panel identity
// so a restart can publish names before the first label harvest completes.
package store

import (
	"errors"

	"paradox-go-home/internal/protocol"
)

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Labels
	SaveLabel(kind protocol.LabelType, n int, label string) error
	GetLabel(kind protocol.LabelType, n int) (*Label, error)
	ListLabels(kind protocol.LabelType) ([]*Label, error)

	// Panel identity
	SavePanel(p *PanelRecord) error
	GetPanel() (*PanelRecord, error)

	// Close the store
	Close() error
}
