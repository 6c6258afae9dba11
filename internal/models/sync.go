package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
)

// EntityType names a synced entity collection.
type EntityType string

const (
	EntityInboxItem      EntityType = "inbox_item"
	EntityQuest          EntityType = "quest"
	EntityNote           EntityType = "note"
	EntityItem           EntityType = "item"
	EntitySourceDocument EntityType = "source_document"
	EntityRoutine        EntityType = "routine"
)

// SyncedTypes lists every collection the sync engine reconciles.
var SyncedTypes = []EntityType{
	EntityInboxItem,
	EntityQuest,
	EntityNote,
	EntityItem,
	EntitySourceDocument,
	EntityRoutine,
}

func (t EntityType) Valid() bool {
	for _, s := range SyncedTypes {
		if s == t {
			return true
		}
	}
	return false
}

// NewEntity returns an empty entity of type t.
func NewEntity(t EntityType) (Entity, error) {
	switch t {
	case EntityInboxItem:
		return &InboxItem{}, nil
	case EntityQuest:
		return &Quest{}, nil
	case EntityNote:
		return &Note{}, nil
	case EntityItem:
		return &Item{}, nil
	case EntitySourceDocument:
		return &SourceDocument{}, nil
	case EntityRoutine:
		return &Routine{}, nil
	default:
		return nil, common.Validation("type", fmt.Sprintf("unknown entity type %q", t))
	}
}

// SyncRecord is the wire envelope of one entity. Version is the version the
// sender last observed. Rev is the local modification counter captured when
// the record was read from the local store; it never leaves the device.
type SyncRecord struct {
	Type       EntityType      `json:"type"`
	ID         common.ID       `json:"id"`
	Version    int64           `json:"version"`
	ModifiedAt time.Time       `json:"modifiedAt"`
	Deleted    bool            `json:"deleted"`
	Data       json.RawMessage `json:"data"`
	Rev        int64           `json:"-"`
}

// EncodeRecord wraps e into a SyncRecord.
func EncodeRecord(e Entity) (SyncRecord, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return SyncRecord{}, err
	}
	m := e.Meta()
	return SyncRecord{
		Type:       e.EntityType(),
		ID:         m.ID,
		Version:    m.Version,
		ModifiedAt: m.UpdatedAt,
		Deleted:    m.DeletedAt != nil,
		Data:       b,
	}, nil
}

// Decode unwraps the record payload. The envelope id wins over the payload.
func (r SyncRecord) Decode() (Entity, error) {
	e, err := NewEntity(r.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Data, e); err != nil {
		return nil, common.Validation("data", "malformed payload")
	}
	m := e.Meta()
	if !m.ID.IsZero() && m.ID != r.ID {
		return nil, common.Validation("id", "envelope and payload ids differ")
	}
	m.ID = r.ID
	m.Version = r.Version
	return e, nil
}

type PullRequest struct {
	Type  EntityType `json:"type"`
	Since *time.Time `json:"since,omitempty"`
	Limit int        `json:"limit"`
}

type PullResponse struct {
	Entities        []SyncRecord `json:"entities"`
	ServerTimestamp time.Time    `json:"serverTimestamp"`
	HasMore         bool         `json:"hasMore"`
}

type PushRequest struct {
	Type            EntityType   `json:"type"`
	Entities        []SyncRecord `json:"entities"`
	ClientTimestamp time.Time    `json:"clientTimestamp"`
}

type PushResponse struct {
	Accepted  []common.ID    `json:"accepted"`
	Conflicts []SyncConflict `json:"conflicts"`
}

// SyncConflict reports a pushed record the server refused.
type SyncConflict struct {
	EntityID      common.ID  `json:"entityId"`
	EntityType    EntityType `json:"entityType"`
	ServerVersion int64      `json:"serverVersion"`
	ClientVersion int64      `json:"clientVersion"`
	Message       string     `json:"message"`
}

type SyncStatusResponse struct {
	UserID          string             `json:"userId"`
	ServerTimestamp time.Time          `json:"serverTimestamp"`
	Counts          map[EntityType]int `json:"counts"`
}

// SyncState is the client-visible synchronization state.
type SyncState string

const (
	SyncStateSynced   SyncState = "SYNCED"
	SyncStatePending  SyncState = "PENDING"
	SyncStateSyncing  SyncState = "SYNCING"
	SyncStateConflict SyncState = "CONFLICT"
	SyncStateOffline  SyncState = "OFFLINE"
)

type SyncStatus struct {
	State      SyncState  `json:"state"`
	Pending    int        `json:"pending"`
	Conflicts  int        `json:"conflicts"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`

	// LastFailedAt is set while the most recent attempt has failed.
	LastFailedAt *time.Time `json:"lastFailedAt,omitempty"`
}

// LocalConflict is a conflict recorded on the device, with the server copy
// once a pull has delivered it.
type LocalConflict struct {
	SyncConflict
	DetectedAt time.Time       `json:"detectedAt"`
	Remote     json.RawMessage `json:"remote,omitempty"`
}
