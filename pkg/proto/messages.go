// Package proto defines the shared message types for internal RPC calls
// between the gateway and the searcher. The types are hand-written with
// JSON struct tags for the lightweight JSON-over-TCP RPC layer in pkg/grpc;
// no code generation is involved.
package proto

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// StatsRequest asks for index statistics. The zero value covers all shards.
type StatsRequest struct{}

// StatsResponse aggregates index statistics across all shards.
type StatsResponse struct {
	TotalDocs       int64       `json:"total_docs"`
	TotalTerms      int64       `json:"total_terms"`
	TotalTokens     int64       `json:"total_tokens"`
	LifetimeIndexed uint64      `json:"lifetime_indexed"`
	Shards          []ShardStat `json:"shards"`
}

// ShardStat holds one shard's statistics.
type ShardStat struct {
	ShardID         int32  `json:"shard_id"`
	Documents       int64  `json:"documents"`
	Terms           int64  `json:"terms"`
	Tokens          int64  `json:"tokens"`
	LifetimeIndexed uint64 `json:"lifetime_indexed"`
}

// CheckpointRequest triggers a checkpoint across all shards.
type CheckpointRequest struct{}

// CheckpointResponse confirms the checkpoint.
type CheckpointResponse struct {
	Success bool   `json:"success"`
	Shards  int32  `json:"shards"`
	Message string `json:"message,omitempty"`
}

// RebuildRequest triggers a full index rebuild from the document store.
type RebuildRequest struct{}

// RebuildResponse reports the rebuild outcome.
type RebuildResponse struct {
	Success   bool   `json:"success"`
	Documents int64  `json:"documents"`
	Message   string `json:"message,omitempty"`
}
