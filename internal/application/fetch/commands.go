package fetch

import (
	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
)

// RunCommand represents one invocation of the pipeline
type RunCommand struct {
	Mode      download.Mode
	Selection catalog.Selection
	// Estimate adds a size estimate to a download run. It is implied by
	// ModeEstimate and ignored by list and verify.
	Estimate bool
}
