// Package model contains domain models passed between layers.
package model

import "time"

// Player is a persistent identity grouping one or more characters by
// shared in-game title.
type Player struct {
	ID       int64
	Title    string
	JoinDate time.Time
}

// Character is an in-game avatar, optionally attached to a player.
type Character struct {
	ID       int64 // ESI character id
	Name     string
	Title    string // raw title, may carry a color tag
	JoinDate time.Time
	PlayerID int64 // 0 when unclaimed
}

// SolarSystem is SDE reference data.
type SolarSystem struct {
	ID   int64
	Name string
}

// ItemType is SDE reference data.
type ItemType struct {
	ID   int64
	Name string
}

// Killmail records a combat loss credited to the final-blow character.
type Killmail struct {
	ID               int64
	Time             time.Time // stored in UTC
	CharacterID      int64
	SolarSystemID    int64
	VictimShipTypeID int64
	TotalValue       float64
}

// MonthlyUpload is a batch of spreadsheet-derived records for one month.
type MonthlyUpload struct {
	ID             int64
	Year           int
	Month          int
	UploadDate     time.Time
	TaxRate        float64
	OreConvertRate float64
	UploadedBy     string
}

// PAPRecord is one fleet-participation row of a monthly upload.
type PAPRecord struct {
	ID           int64
	UploadID     int64
	CharacterID  int64
	PAPPoints    float64
	StrategicPAP float64
}

// BountyRecord is one bounty-tax row of a monthly upload.
type BountyRecord struct {
	ID          int64
	UploadID    int64
	CharacterID int64
	TaxISK      float64
}

// MiningRecord is one mining-volume row of a monthly upload.
type MiningRecord struct {
	ID          int64
	UploadID    int64
	CharacterID int64
	VolumeM3    float64
}

// User is an admin account allowed to mutate uploads.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// System state keys persisted across restarts.
const (
	StateLatestUpdate = "latest_update"
	StateSDEVersion   = "sde_version"
)

// UnclaimedTitle is the bucket player for characters without a title.
const UnclaimedTitle = "__unclaimed__"
