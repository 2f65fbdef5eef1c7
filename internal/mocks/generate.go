// Package mocks provides gomock-generated mocks for the core ports.
//
// Regenerate after interface changes with:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_queue_mock.go github.com/urbanflow/rebal/internal/core TaskQueue
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=output_store_mock.go github.com/urbanflow/rebal/internal/core OutputStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=snapshot_reader_mock.go github.com/urbanflow/rebal/internal/core SnapshotReader
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=run_cache_mock.go github.com/urbanflow/rebal/internal/core RunCache
