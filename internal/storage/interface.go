package storage

import (
	"context"
	"io"
)

// RepositoryStore realizes repository requests against a directory tree
type RepositoryStore interface {
	// EnsureRepository creates the repository root and its artifact directory
	EnsureRepository(ctx context.Context, repo string) error

	// EnsureCache creates the indexer scratch directory shared by all repositories
	EnsureCache(ctx context.Context) error

	// RepositoryPath returns the repository root without touching the filesystem
	RepositoryPath(repo string) string

	// CachePath returns the shared indexer scratch directory
	CachePath() string

	// FilePath returns the artifact location for file, rejecting unexpected extensions
	FilePath(repo, file string) (string, error)

	// WriteUpload stores body at path and returns the number of bytes copied
	WriteUpload(ctx context.Context, path string, body io.Reader) (int64, error)
}
