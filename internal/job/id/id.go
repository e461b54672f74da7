// Package id provides unique identifier generation for export jobs.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique export job ID.
// Format: export-<timestamp>-<random>
// Example: export-1701432000-a1b2c3d4e5f6
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("export-%d-%s", time.Now().Unix(), random[:12])
}
