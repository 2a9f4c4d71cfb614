package sheets

import (
	"context"

	"costmanager/internal/core"
)

// CostWriter exports recorded entries to an outbound spreadsheet.
type CostWriter interface {
	// AppendCost writes one row for the entry. Writing an entry that is
	// already present is a no-op.
	AppendCost(ctx context.Context, e core.CostEntry) error
}
