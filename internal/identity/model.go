package identity

import (
	"strings"
	"time"
)

// Mapping links an auth-provider subject to the stable Pulse account id.
// Rows are written once on first login and never updated or deleted, so
// the account's primary key survives a provider migration.
type Mapping struct {
	ExternalID string    `gorm:"column:external_id;primaryKey;size:190;not null;uniqueIndex:idx_identity_external"`
	InternalID string    `gorm:"column:internal_id;size:36;not null;uniqueIndex:idx_identity_internal"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing identity mappings.
func (Mapping) TableName() string {
	return "identity_mappings"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
