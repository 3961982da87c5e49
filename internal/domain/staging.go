package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Row is one parsed CSV record keyed by header name.
type Row map[string]string

// StagingKey scopes a staged import to one operator inside one tenant.
type StagingKey struct {
	TenantID   uuid.UUID
	OperatorID uuid.UUID
}

func (k StagingKey) String() string {
	return fmt.Sprintf("%s:%s", k.TenantID, k.OperatorID)
}

// StagedImport is an uploaded recipient list waiting for validate/launch.
// Every row carries exactly the columns listed in Headers.
type StagedImport struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	OperatorID uuid.UUID `json:"operator_id"`
	Headers    []string  `json:"headers"`
	Rows       []Row     `json:"rows"`
}

// HasHeader reports whether column is part of the header set.
func (s *StagedImport) HasHeader(column string) bool {
	for _, h := range s.Headers {
		if h == column {
			return true
		}
	}
	return false
}

// Preview returns at most n leading rows.
func (s *StagedImport) Preview(n int) []Row {
	if len(s.Rows) < n {
		n = len(s.Rows)
	}
	return s.Rows[:n]
}
