package model

// SnapshotIdentity is the canonical identity of the station rows observed at
// one decision bucket: a content digest plus a short display id. Callers use
// it as a precondition to detect the station feed changing under a request.
type SnapshotIdentity struct {
	ViewSnapshotID     string `json:"view_snapshot_id"`
	ViewSnapshotSHA256 string `json:"view_snapshot_sha256"`
}
