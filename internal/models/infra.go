package models

// SnapshotID references infrastructure state captured for rollback.
type SnapshotID string

// ServiceStatus is the control-plane view of a service deployment.
type ServiceStatus struct {
	Service  string
	State    string
	Replicas int
	Version  string
}
