package production

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/shopspring/decimal"
	"time"
)

type Stage string

const (
	StageGudangIn     Stage = "gudang_in"
	StageSorting      Stage = "sorting"
	StageGrading      Stage = "grading"
	StageDrying       Stage = "drying"
	StagePackaging    Stage = "packaging"
	StageProduksi     Stage = "produksi"
	StageGudangOut    Stage = "gudang_out"
	StageQualityCheck Stage = "quality_check"
	StagePemasaran    Stage = "pemasaran"
)

var stages = []Stage{
	StageGudangIn, StageSorting, StageGrading, StageDrying, StagePackaging,
	StageProduksi, StageGudangOut, StageQualityCheck, StagePemasaran,
}

// RequiredStages must all be completed before an order is ready for
// delivery. The remaining stages are optional bookkeeping.
var RequiredStages = []Stage{StageGudangIn, StageProduksi, StageGudangOut, StagePemasaran}

func Stages() []Stage { return append([]Stage(nil), stages...) }

func ParseStage(s string) (Stage, error) {
	for _, st := range stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown production stage %q", s)
}

// Subrole is the management subrole that operates the stage.
func (s Stage) Subrole() access.Subrole {
	switch s {
	case StageGudangIn:
		return access.SubroleGudangIn
	case StageGudangOut:
		return access.SubroleGudangOut
	case StagePemasaran:
		return access.SubrolePemasaran
	default:
		return access.SubroleProduksi
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown production status %q", s)
}

// Record tracks one stage of one order.
type Record struct {
	ID             string           `json:"id"`
	OrderID        string           `json:"order_id"`
	Stage          Stage            `json:"stage"`
	Status         Status           `json:"status"`
	Temperature    *decimal.Decimal `json:"temperature,omitempty"`
	Humidity       *decimal.Decimal `json:"humidity,omitempty"`
	QualityMetrics json.RawMessage  `json:"quality_metrics,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	OperatorID     string           `json:"operator_id"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Readings are the optional environment values captured on start or
// update.
type Readings struct {
	Temperature    *decimal.Decimal `json:"temperature"`
	Humidity       *decimal.Decimal `json:"humidity"`
	Notes          *string          `json:"notes"`
	QualityMetrics json.RawMessage  `json:"quality_metrics"`
}

type Filter struct {
	OrderID string
	Stage   Stage
	Status  Status
	Limit   int
	Offset  int
}

// Store persists production records. Insert must fail with a
// DuplicateStage error when the (order, stage) pair already exists.
type Store interface {
	Insert(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (Record, error)
	GetForUpdate(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, r Record) error
	ListByOrder(ctx context.Context, orderID string) ([]Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
}

// AllRequiredCompleted reports whether recs cover every required stage
// with a completed record.
func AllRequiredCompleted(recs []Record) bool {
	done := make(map[Stage]bool, len(recs))
	for _, r := range recs {
		if r.Status == StatusCompleted {
			done[r.Stage] = true
		}
	}
	for _, s := range RequiredStages {
		if !done[s] {
			return false
		}
	}
	return true
}
