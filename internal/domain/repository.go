package domain

import (
	"context"
	"time"
)

// WorkerPool is the external system that executes generation jobs.
type WorkerPool interface {
	Enqueue(ctx context.Context, req SubmitRequest) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

// StatusSource answers authoritative status queries for a job.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (StatusReport, error)
}

// StatusSubscriber delivers push notifications for one job. The channel is
// closed when ctx is done. Delivery may duplicate or drop events.
type StatusSubscriber interface {
	Subscribe(ctx context.Context, jobID string) (<-chan StatusEvent, error)
}

// JobStore is the durable single slot holding the active job.
type JobStore interface {
	Initialize(ctx context.Context, sessionID string) error
	// Load returns nil, nil when no job is active.
	Load(ctx context.Context) (*PersistedJobRecord, error)
	Save(ctx context.Context, rec PersistedJobRecord) error
	Clear(ctx context.Context) error
}

// AssetRepository handles persistence for generated asset records.
type AssetRepository interface {
	Get(ctx context.Context, assetID string) (*AssetRecord, error)
	List(ctx context.Context, filter ListFilter, cursor string) (*AssetPage, error)
	Delete(ctx context.Context, assetID string) error
}

// URLSigner issues time-limited read URLs for stored objects.
type URLSigner interface {
	SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// ObjectRemover deletes stored objects.
type ObjectRemover interface {
	Remove(ctx context.Context, bucket, path string) error
}

// ObjectStore is the storage backend used by the asset resolver.
type ObjectStore interface {
	URLSigner
	ObjectRemover
}
