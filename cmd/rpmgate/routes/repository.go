package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/rpmgate/cmd/rpmgate/types"
	"github.com/lgulliver/rpmgate/internal/inspector"
	"github.com/lgulliver/rpmgate/internal/metrics"
	"github.com/lgulliver/rpmgate/internal/middleware"
	"github.com/lgulliver/rpmgate/internal/repository"
	"github.com/lgulliver/rpmgate/internal/storage"
	"github.com/rs/zerolog"
)

const serviceName = "rpmgate"

// RepositoryRoutes sets up the catch-all repository routes.
// Every path is accepted; the request target is resolved by the handlers.
// version is reported by the health check.
func RepositoryRoutes(router *gin.Engine, store storage.RepositoryStore, refresher Refresher, m metrics.GatewayMetrics, version string) {
	if m == nil {
		m = metrics.NewNoopGatewayMetrics()
	}

	router.HandleMethodNotAllowed = true
	router.NoMethod(methodNotAllowed())

	router.GET("/*path", healthCheck(version))
	router.PUT("/*path", uploadArtifact(store, m))
	router.POST("/*path", refreshMetadata(refresher))
}

// requestTarget returns the raw request target as sent by the client
func requestTarget(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

func healthCheck(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, types.HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Timestamp: time.Now().UTC(),
			Version:   version,
		})
	}
}

func methodNotAllowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, types.ErrorResponse{
			Error: "Method not allowed",
			Code:  "method_not_allowed",
		})
	}
}

// uploadArtifact handles PUT /<repo>/<file>.rpm
func uploadArtifact(store storage.RepositoryStore, m metrics.GatewayMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := middleware.Logger(c)

		req, err := repository.ParseRequestURI(requestTarget(c.Request))
		if err != nil {
			m.ObserveUpload(repository.KindOf(err).String(), 0)
			respondError(c, err)
			return
		}
		if !req.HasFile() {
			err := repository.BadRequest("upload requires a file name")
			m.ObserveUpload(repository.KindOf(err).String(), 0)
			respondError(c, err)
			return
		}

		// Validate the target before creating anything on disk
		path, err := store.FilePath(req.RepoName, req.FileName)
		if err != nil {
			m.ObserveUpload(repository.KindOf(err).String(), 0)
			respondError(c, err)
			return
		}

		ctx := c.Request.Context()
		if err := store.EnsureRepository(ctx, req.RepoName); err != nil {
			m.ObserveUpload(repository.KindOf(err).String(), 0)
			respondError(c, err)
			return
		}

		written, err := store.WriteUpload(ctx, path, c.Request.Body)
		if err != nil {
			m.ObserveUpload(repository.KindOf(err).String(), 0)
			respondError(c, err)
			return
		}
		m.ObserveUpload("ok", written)

		result := types.UploadResult{
			Repository: req.RepoName,
			File:       req.FileName,
			Size:       written,
		}

		// The header is informational; a file that does not parse is still stored
		if info, err := inspector.Inspect(path); err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("uploaded file has no readable rpm header")
		} else {
			result.Package = info.NEVRA()
		}

		logger.Info().
			Str("repository", req.RepoName).
			Str("file", req.FileName).
			Str("package", result.Package).
			Int64("bytes", written).
			Msg("artifact uploaded")

		c.JSON(http.StatusOK, types.SuccessResponse{
			Message: "Artifact uploaded",
			Data:    result,
		})
	}
}

// refreshMetadata handles POST /<repo>[/<anything>]
func refreshMetadata(refresher Refresher) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := repository.ParseRequestURI(requestTarget(c.Request))
		if err != nil {
			respondError(c, err)
			return
		}

		// A refresh always covers the whole repository
		outcome, err := refresher.Refresh(c.Request.Context(), req.RepoName)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.SuccessResponse{
			Message: "Repository metadata refreshed",
			Data: types.RefreshResult{
				RunID:      outcome.RunID.String(),
				Repository: outcome.Repository,
				WaitedMs:   outcome.Waited.Milliseconds(),
				DurationMs: outcome.Duration.Milliseconds(),
			},
		})
	}
}

// respondError maps err to its status and writes the JSON error body.
// Server-side details stay in the log.
func respondError(c *gin.Context, err error) {
	kind := repository.KindOf(err)
	status := repository.StatusOf(err)

	resp := types.ErrorResponse{Code: kind.String()}
	switch kind {
	case repository.KindBadRequest:
		resp.Error = err.Error()
	case repository.KindSubprocess:
		resp.Error = "metadata refresh failed"
		var repoErr *repository.Error
		if errors.As(err, &repoErr) {
			resp.Details = repoErr.Msg
		}
	default:
		resp.Error = "internal server error"
	}

	logger := middleware.Logger(c)
	level := zerolog.ErrorLevel
	if status < http.StatusInternalServerError {
		level = zerolog.WarnLevel
	}
	logger.WithLevel(level).Err(err).
		Str("method", c.Request.Method).
		Str("kind", kind.String()).
		Int("status", status).
		Msg("request failed")

	c.JSON(status, resp)
}
