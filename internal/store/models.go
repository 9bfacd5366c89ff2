package store

import "time"

// Label is a harvested entity name.
type Label struct {
	Kind      string    `json:"kind"`
	Number    int       `json:"number"`
	Label     string    `json:"label"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PanelRecord is the identity reported by the last start-communication reply.
type PanelRecord struct {
	PanelID          int       `json:"panel_id"`
	Name             string    `json:"name"`
	FirmwareVersion  int       `json:"firmware_version"`
	FirmwareRevision int       `json:"firmware_revision"`
	FirmwareBuild    int       `json:"firmware_build"`
	SeenAt           time.Time `json:"seen_at"`
}
