// Package state resolves where agentsafe keeps its event logs. Everything
// lives under <workspace>/.agentsafe/ so one directory carries the complete
// enforcement history for a workspace. Callers may override any individual
// path by flag; these are only the defaults.
package state

import "path/filepath"

// DirName is the state directory created inside the workspace.
const DirName = ".agentsafe"

// ApprovalsFileName is the operator override file consulted by the inline
// run gate. It sits at the workspace root, not inside the state directory.
const ApprovalsFileName = ".agentsafe_approvals"

// Dir returns the state directory for a workspace.
func Dir(workspace string) string {
	return filepath.Join(workspace, DirName)
}

// LedgerPath returns the default audit ledger location.
func LedgerPath(workspace string) string {
	return filepath.Join(workspace, DirName, "ledger.jsonl")
}

// GrantsPath returns the default grant event log location.
func GrantsPath(workspace string) string {
	return filepath.Join(workspace, DirName, "grants.jsonl")
}

// RequestsPath returns the default approval-request event log location.
func RequestsPath(workspace string) string {
	return filepath.Join(workspace, DirName, "approval_requests.jsonl")
}

// IndexPath returns the default sqlite query index location.
func IndexPath(workspace string) string {
	return filepath.Join(workspace, DirName, "ledger.db")
}

// ApprovalsPath returns the operator approvals override file location.
func ApprovalsPath(workspace string) string {
	return filepath.Join(workspace, ApprovalsFileName)
}
