package engine

import (
	"encoding/json"
	"io"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/services"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitStoreError = 1
	ExitValidation = 2
	ExitQuota      = 3
)

// Report is the JSON document printed after a successful run. Sections of
// operations that were not requested are omitted.
type Report struct {
	Bind     *services.BindResult     `json:"bind,omitempty"`
	Release  *services.ReleaseResult  `json:"release,omitempty"`
	Pool     *PoolReport              `json:"pool,omitempty"`
	Diagnose *services.DiagnoseReport `json:"diagnose,omitempty"`
}

// PoolReport lists the slots of one pair.
type PoolReport struct {
	AppID int64             `json:"app_id"`
	Email string            `json:"email"`
	Slots []*models.License `json:"slots"`
}

// Failure is printed instead of a Report when a run fails.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch common.Marker(err) {
	case common.MarkerValidation:
		return ExitValidation
	case common.MarkerQuotaExceeded:
		return ExitQuota
	default:
		return ExitStoreError
	}
}

// Fail writes the failure document for err to w and returns the exit code.
func Fail(w io.Writer, err error) int {
	_ = writeJSON(w, &Failure{Success: false, Error: common.Marker(err), Message: err.Error()})
	return ExitCode(err)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
