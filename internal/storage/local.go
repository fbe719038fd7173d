package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lgulliver/rpmgate/internal/repository"
	"github.com/rs/zerolog/log"
)

const (
	// PackageExtension is the only extension accepted for uploaded artifacts
	PackageExtension = "rpm"
	// ArtifactDir is the per-repository directory holding uploaded artifacts
	ArtifactDir = "rpms"
	// CacheDir is the indexer scratch directory under the root
	CacheDir = "cache"
)

// LocalStorage lays repositories out under a single root directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance rooted at basePath
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("repository root is required")
	}

	if err := ensureDir("init", basePath); err != nil {
		log.Error().Err(err).Str("path", basePath).Msg("failed to prepare repository root")
		return nil, fmt.Errorf("failed to prepare repository root: %w", err)
	}

	log.Info().Str("path", basePath).Msg("local storage initialized")
	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Root returns the directory all repositories live under
func (ls *LocalStorage) Root() string {
	return ls.basePath
}

// EnsureRepository creates <root>/<repo> and <root>/<repo>/rpms if missing.
// Calling it again for the same repository is a no-op.
func (ls *LocalStorage) EnsureRepository(ctx context.Context, repo string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if repo == CacheDir {
		return &repository.Error{
			Kind: repository.KindBadRequest,
			Op:   "ensure repository",
			Msg:  fmt.Sprintf("repository name %q is reserved", repo),
		}
	}

	repoPath := ls.RepositoryPath(repo)
	if err := ensureDir("ensure repository", repoPath); err != nil {
		log.Error().Err(err).Str("repository", repo).Str("path", repoPath).Msg("failed to create repository directory")
		return err
	}

	artifactPath := ls.artifactPath(repo)
	if err := ensureDir("ensure repository", artifactPath); err != nil {
		log.Error().Err(err).Str("repository", repo).Str("path", artifactPath).Msg("failed to create artifact directory")
		return err
	}

	return nil
}

// EnsureCache creates the shared indexer cache directory if missing
func (ls *LocalStorage) EnsureCache(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := ensureDir("ensure cache", ls.CachePath()); err != nil {
		log.Error().Err(err).Str("path", ls.CachePath()).Msg("failed to create cache directory")
		return err
	}
	return nil
}

// RepositoryPath joins the root and the repository name
func (ls *LocalStorage) RepositoryPath(repo string) string {
	return filepath.Join(ls.basePath, repo)
}

// CachePath returns <root>/cache
func (ls *LocalStorage) CachePath() string {
	return filepath.Join(ls.basePath, CacheDir)
}

func (ls *LocalStorage) artifactPath(repo string) string {
	return filepath.Join(ls.RepositoryPath(repo), ArtifactDir)
}

// FilePath returns <root>/<repo>/rpms/<file>. The extension must be exactly "rpm".
func (ls *LocalStorage) FilePath(repo, file string) (string, error) {
	if file == "" || filepath.Base(file) != file {
		return "", &repository.Error{
			Kind: repository.KindBadRequest,
			Op:   "resolve file",
			Msg:  fmt.Sprintf("invalid file name %q", file),
		}
	}

	if ext := extension(file); ext != PackageExtension {
		return "", &repository.Error{
			Kind: repository.KindBadRequest,
			Op:   "resolve file",
			Msg:  fmt.Sprintf("unexpected file name %s, it must be a .%s file", file, PackageExtension),
		}
	}

	return filepath.Join(ls.artifactPath(repo), file), nil
}

// WriteUpload copies body into path through a temporary sibling file.
// The target either receives the whole body or is left untouched.
func (ls *LocalStorage) WriteUpload(ctx context.Context, path string, body io.Reader) (int64, error) {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to create temporary file")
		return 0, &repository.Error{Kind: repository.KindIO, Op: "create", Path: path, Err: err}
	}
	tempPath := tempFile.Name()

	committed := false
	defer func() {
		if !committed {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	bytesWritten, err := io.Copy(io.MultiWriter(tempFile, hasher), body)
	if err != nil {
		log.Error().Err(err).Str("path", path).Int64("bytes_written", bytesWritten).Msg("failed to write upload")
		return bytesWritten, &repository.Error{Kind: repository.KindIO, Op: "write", Path: path, Err: err}
	}

	if err := tempFile.Sync(); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to sync temporary file")
		return bytesWritten, &repository.Error{Kind: repository.KindIO, Op: "sync", Path: path, Err: err}
	}

	if err := tempFile.Close(); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to close temporary file")
		return bytesWritten, &repository.Error{Kind: repository.KindIO, Op: "close", Path: path, Err: err}
	}

	if err := os.Rename(tempPath, path); err != nil {
		log.Error().Err(err).Str("path", path).Str("temp_path", tempPath).Msg("failed to move temporary file to final location")
		return bytesWritten, &repository.Error{Kind: repository.KindIO, Op: "rename", Path: path, Err: err}
	}
	committed = true

	log.Debug().
		Str("path", path).
		Int64("bytes_written", bytesWritten).
		Str("checksum", hex.EncodeToString(hasher.Sum(nil))).
		Dur("duration", time.Since(startTime)).
		Msg("upload stored")

	return bytesWritten, nil
}

// ensureDir creates path and its parents. An existing non-directory is a
// configuration error; a concurrent creator winning the race is not an error.
func ensureDir(op, path string) error {
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return notADirectory(op, path)
		}
		return nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		if errors.Is(err, syscall.ENOTDIR) {
			return notADirectory(op, path)
		}
		if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
			return notADirectory(op, path)
		}
		return &repository.Error{Kind: repository.KindIO, Op: op, Path: path, Err: err}
	}

	return nil
}

func notADirectory(op, path string) error {
	return &repository.Error{
		Kind: repository.KindConfiguration,
		Op:   op,
		Path: path,
		Msg:  "path must refer to a directory",
	}
}

// extension returns the text after the last dot. Names without a stem
// (".rpm") and names without a dot have no extension.
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}
