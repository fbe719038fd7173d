// Package refresh runs the external metadata indexer, one run at a time.
package refresh

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lgulliver/rpmgate/internal/metrics"
	"github.com/lgulliver/rpmgate/internal/repository"
	"github.com/lgulliver/rpmgate/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultIndexer is used when no indexer path is configured
const DefaultIndexer = "createrepo"

// Outcome describes one indexer invocation
type Outcome struct {
	RunID      uuid.UUID
	Repository string
	ExitCode   int
	Output     string
	Waited     time.Duration
	Duration   time.Duration
}

// Succeeded reports whether the indexer exited with status zero
func (o *Outcome) Succeeded() bool {
	return o.ExitCode == 0
}

// Coordinator serializes indexer runs across all repositories of one server
type Coordinator struct {
	store   storage.RepositoryStore
	indexer string
	runner  Runner
	metrics metrics.GatewayMetrics

	// mu is held for the whole spawn-and-wait of a single run
	mu sync.Mutex
}

// NewCoordinator creates a coordinator. A nil runner runs real processes and
// nil metrics disables instrumentation.
func NewCoordinator(store storage.RepositoryStore, indexer string, runner Runner, m metrics.GatewayMetrics) *Coordinator {
	if indexer == "" {
		indexer = DefaultIndexer
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if m == nil {
		m = metrics.NewNoopGatewayMetrics()
	}

	return &Coordinator{
		store:   store,
		indexer: indexer,
		runner:  runner,
		metrics: m,
	}
}

// CacheArgument returns the indexer cache flag for a repository root
func CacheArgument(root string) string {
	return cacheFlag(filepath.Join(root, storage.CacheDir))
}

func cacheFlag(cachePath string) string {
	return "--cachedir=" + cachePath
}

// Arguments returns the indexer arguments for repo
func (c *Coordinator) Arguments(repo string) []string {
	return []string{cacheFlag(c.store.CachePath()), "--update", c.store.RepositoryPath(repo)}
}

// Refresh regenerates the metadata of repo. It blocks until every earlier
// refresh has finished and then until its own indexer run exits. Each call
// triggers its own run.
func (c *Coordinator) Refresh(ctx context.Context, repo string) (*Outcome, error) {
	if err := c.store.EnsureRepository(ctx, repo); err != nil {
		return nil, err
	}
	if err := c.store.EnsureCache(ctx); err != nil {
		return nil, err
	}

	outcome := &Outcome{
		RunID:      uuid.New(),
		Repository: repo,
	}
	args := c.Arguments(repo)

	logger := log.With().
		Str("run_id", outcome.RunID.String()).
		Str("repository", repo).
		Logger()

	queuedAt := time.Now()
	c.metrics.RefreshQueued()
	logger.Debug().Msg("waiting for indexer lock")

	result, err := c.runLocked(args, func() {
		outcome.Waited = time.Since(queuedAt)
		c.metrics.RefreshStarted()
		logger.Info().
			Str("indexer", c.indexer).
			Strs("args", args).
			Dur("waited", outcome.Waited).
			Msg("rebuilding repository metadata")
	})
	outcome.Duration = time.Since(queuedAt) - outcome.Waited
	outcome.ExitCode = result.ExitCode
	outcome.Output = result.Output

	if err != nil {
		outcome.ExitCode = -1
		c.metrics.ObserveRefresh("spawn_error", outcome.Duration)
		logger.Error().Err(err).Str("indexer", c.indexer).Msg("failed to start indexer")
		return outcome, &repository.Error{
			Kind:     repository.KindSubprocess,
			Op:       "refresh",
			Path:     c.store.RepositoryPath(repo),
			ExitCode: -1,
			Msg:      "failed to start indexer",
			Err:      err,
		}
	}

	if !outcome.Succeeded() {
		c.metrics.ObserveRefresh("failed", outcome.Duration)
		logger.Error().
			Int("exit_code", outcome.ExitCode).
			Str("output", outcome.Output).
			Dur("duration", outcome.Duration).
			Msg("indexer failed")
		return outcome, &repository.Error{
			Kind:     repository.KindSubprocess,
			Op:       "refresh",
			Path:     c.store.RepositoryPath(repo),
			ExitCode: outcome.ExitCode,
			Msg:      fmt.Sprintf("indexer exited with code %d", outcome.ExitCode),
		}
	}

	c.metrics.ObserveRefresh("ok", outcome.Duration)
	logger.Info().Dur("duration", outcome.Duration).Msg("repository metadata rebuilt")
	return outcome, nil
}

// runLocked holds the lock for the full run. The lock is released even if the
// runner fails to start the process or panics.
func (c *Coordinator) runLocked(args []string, started func()) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started()
	return c.runner.Run(c.indexer, args)
}
