package domain

import "time"

// SnapshotVersion is the format version written by Export and accepted by
// Import.
const SnapshotVersion = 1

// Snapshot is the full JSON export: every collection plus the closed-periods
// list. It is also the unit the local cache loads and saves in bulk.
type Snapshot struct {
	Version       int            `json:"version"`
	Transactions  []*Transaction `json:"transactions"`
	Accounts      []*Account     `json:"accounts"`
	Categories    []*Category    `json:"categories"`
	Bills         []*Bill        `json:"bills"`
	BillPayments  []*BillPayment `json:"billPayments"`
	ClosedPeriods []string       `json:"closedPeriods"`
	ExportedAt    time.Time      `json:"exportedAt,omitzero"`
}

// SyncMetadata describes the freshness of locally cached data.
type SyncMetadata struct {
	LastSync time.Time `json:"lastSync"`
	HasData  bool      `json:"hasData"`
	IsStale  bool      `json:"isStale"`
}
