package pinning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PinRecord is the audit row written for every successful pin
type PinRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CID       string         `gorm:"column:cid;not null;index" json:"cid"`
	Kind      string         `gorm:"not null" json:"kind"` // "file" or "json"
	Schema    string         `json:"schema,omitempty"`
	Name      string         `json:"name,omitempty"`
	Size      int64          `json:"size"`
	Uploader  string         `json:"uploader,omitempty"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// BeforeCreate assigns an id when the database does not
func (p *PinRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
