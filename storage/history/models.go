package history

import (
	"time"

	"gorm.io/gorm"
)

// Operation states mirrored from the queue.
const (
	StateQueued    = "queued"
	StateExecuted  = "executed"
	StateFailed    = "failed"
	StateUnhandled = "unhandled"
)

// OperationRecord is the indexed view of a queued operation. Amounts are
// stored as decimal strings in fixed-point units.
type OperationRecord struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Type            string    `gorm:"index" json:"type"`
	Sender          string    `gorm:"index" json:"sender"`
	Recipient       string    `json:"recipient"`
	Vendor          string    `json:"vendor"`
	ExecFee         string    `json:"execFee"`
	State           string    `gorm:"index" json:"state"`
	QueuedHeight    uint64    `json:"queuedHeight"`
	ProcessedHeight uint64    `json:"processedHeight"`
	FailureName     string    `json:"failureName"`
	Selector        string    `json:"selector"`
	Reason          string    `json:"reason"`
	QAC             string    `gorm:"column:q_ac" json:"qAC"`
	QTC             string    `gorm:"column:q_tc" json:"qTC"`
	QTP             string    `gorm:"column:q_tp" json:"qTP"`
	QACFee          string    `gorm:"column:q_ac_fee" json:"qACFee"`
	QFeeToken       string    `gorm:"column:q_fee_token" json:"qFeeToken"`
	QACInterest     string    `gorm:"column:q_ac_interest" json:"qACInterest"`
	FeeSource       string    `json:"feeSource"`
	BatchID         string    `gorm:"index" json:"batchId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BatchRecord summarises an execution batch.
type BatchRecord struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Executor  string    `gorm:"index" json:"executor"`
	FirstID   uint64    `json:"firstId"`
	LastID    uint64    `json:"lastId"`
	Executed  int       `json:"executed"`
	Failed    int       `json:"failed"`
	ExecFees  string    `json:"execFees"`
	Height    uint64    `gorm:"index" json:"height"`
	CreatedAt time.Time `json:"createdAt"`
}

// AutoMigrate creates or updates the history tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OperationRecord{}, &BatchRecord{})
}
