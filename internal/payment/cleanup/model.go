package cleanup

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/tallybook/internal/payment/domain"
	"gorm.io/datatypes"
)

type ActionType string

const (
	ActionDelete     ActionType = "delete_duplicate"
	ActionReclassify ActionType = "reclassify"
)

// Action is one change a cleanup pass made, or would make on a dry run.
type Action struct {
	Type           ActionType           `json:"type"`
	PaymentID      snowflake.ID         `json:"payment_id"`
	SubscriptionID snowflake.ID         `json:"subscription_id"`
	Period         time.Time            `json:"period"`
	KeptID         snowflake.ID         `json:"kept_id,omitempty"`
	From           domain.PaymentStatus `json:"from,omitempty"`
	To             domain.PaymentStatus `json:"to,omitempty"`
	Skipped        bool                 `json:"skipped,omitempty"`
	Error          string               `json:"error,omitempty"`
}

type Options struct {
	DryRun bool
}

type Result struct {
	RunID        snowflake.ID `json:"run_id,omitempty"`
	DryRun       bool         `json:"dry_run"`
	DeletedCount int          `json:"deleted_count"`
	UpdatedCount int          `json:"updated_count"`
	FailedCount  int          `json:"failed_count"`
	OrphanCount  int64        `json:"orphan_count"`
	Actions      []Action     `json:"actions"`
}

// Run is the audit row persisted for every non dry-run pass.
type Run struct {
	ID           snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	StartedAt    time.Time    `gorm:"not null"`
	FinishedAt   time.Time    `gorm:"not null"`
	DryRun       bool         `gorm:"not null"`
	DeletedCount int          `gorm:"not null"`
	UpdatedCount int          `gorm:"not null"`
	FailedCount  int          `gorm:"not null"`
	OrphanCount  int64        `gorm:"not null"`
	Actions      datatypes.JSON
}

func (Run) TableName() string { return "payment_cleanup_runs" }
