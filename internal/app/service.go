// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	repository "github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/adapters/repository"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/auth"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/export"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/ingest"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/metadata"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/model"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/progress"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/stats"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/domain/types"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/logger"
	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/metrics"
)

// Service implements the API dependencies for the telemetry pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	bundles   metadata.Store
	verifier  auth.Verifier
	gateway   *ingest.Gateway
	projector *progress.Projector

	// Configuration
	dbPath          string
	metadataDir     string
	authSecret      string
	tokenIssuer     string
	defaultLanguage string
	maxPageSize     int
	mostFailedLimit int
	statsSessionCap int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the SQLite database location.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithMetadataDir sets the metadata bundle directory.
func WithMetadataDir(dir string) Option {
	return func(s *Service) {
		s.metadataDir = dir
	}
}

// WithAuthSecret sets the token verification secret and issuer.
func WithAuthSecret(secret, issuer string) Option {
	return func(s *Service) {
		s.authSecret = secret
		s.tokenIssuer = issuer
	}
}

// WithDefaultLanguage sets the display language assumed when a query
// omits one.
func WithDefaultLanguage(lang string) Option {
	return func(s *Service) {
		if lang != "" {
			s.defaultLanguage = lang
		}
	}
}

// WithMaxPageSize caps the session list page size.
func WithMaxPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.maxPageSize = size
		}
	}
}

// WithMostFailedLimit bounds the most-failed-questions ranking.
func WithMostFailedLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.mostFailedLimit = limit
		}
	}
}

// WithStatsSessionCap bounds how many sessions one build-stats query
// aggregates over.
func WithStatsSessionCap(cap int) Option {
	return func(s *Service) {
		if cap > 0 {
			s.statsSessionCap = cap
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore injects a pre-built session store. Used by tests.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithMetadataStore injects a pre-built bundle store. Used by tests.
func WithMetadataStore(bundles metadata.Store) Option {
	return func(s *Service) {
		s.bundles = bundles
	}
}

// WithVerifier injects a pre-built token verifier. Used by tests.
func WithVerifier(verifier auth.Verifier) Option {
	return func(s *Service) {
		s.verifier = verifier
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:          "telemetry.db",
		defaultLanguage: "fr",
		maxPageSize:     100,
		mostFailedLimit: 5,
		statsSessionCap: 10_000,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting telemetry service...")

	if s.store == nil {
		store, err := repository.Open(s.dbPath)
		if err != nil {
			return fmt.Errorf("open telemetry store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.dbPath))
	}

	if s.bundles == nil {
		if s.metadataDir != "" {
			if _, err := os.Stat(s.metadataDir); err == nil {
				s.bundles = metadata.NewFSStore(os.DirFS(s.metadataDir))
				s.logger.Info(ctx, "using filesystem metadata store",
					logger.String("dir", s.metadataDir))
			}
		}
		if s.bundles == nil {
			s.bundles = metadata.NewMapStore()
			s.logger.Warn(ctx, "no metadata directory, resolution degrades to raw keys")
		}
	}

	if s.verifier == nil {
		s.verifier = auth.NewTokenManager([]byte(s.authSecret), s.tokenIssuer)
	}

	s.projector = progress.NewProjector(s.logger)
	s.gateway = ingest.NewGateway(s.store, s.verifier, s.projector, s.logger)

	s.started = true
	s.logger.Info(ctx, "telemetry service started",
		logger.String("defaultLanguage", s.defaultLanguage),
		logger.Int("maxPageSize", s.maxPageSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping telemetry service...")

	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "telemetry service stopped")
}

// Ingest validates and persists one telemetry envelope.
func (s *Service) Ingest(ctx context.Context, env ingest.Envelope) (ingest.Result, error) {
	return s.gateway.Ingest(ctx, env)
}

// ListSessions returns one page of resolved sessions matching the
// filter, plus global aggregates computed over the whole filtered set.
func (s *Service) ListSessions(ctx context.Context, f types.SessionFilter, language string) (*types.SessionPage, error) {
	f = f.Normalize(s.maxPageSize)
	language = s.language(language)

	page, err := s.store.ListSessions(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountSessions(ctx, f)
	if err != nil {
		return nil, err
	}

	// Aggregates cover the whole filtered set, not just this page.
	all := f
	all.Page = 1
	all.Limit = s.statsSessionCap
	fullSet, err := s.store.ListSessions(ctx, all)
	if err != nil {
		return nil, err
	}

	return &types.SessionPage{
		Sessions:   s.resolveSessions(ctx, page, language),
		Pagination: types.Pagination{Page: f.Page, Limit: f.Limit, Total: total},
		Aggregates: stats.Aggregate(s.resolveSessions(ctx, fullSet, language), s.mostFailedLimit),
	}, nil
}

// BuildStats computes per-question and per-procedure statistics for one
// build, optionally narrowed to one version.
func (s *Service) BuildStats(ctx context.Context, f types.SessionFilter, language string) (*types.BuildStatsResult, error) {
	if f.BuildName == "" || f.BuildType == "" {
		return nil, repository.ErrNotFound
	}
	f.Page = 1
	f.Limit = s.statsSessionCap
	language = s.language(language)

	sessions, err := s.store.ListSessions(ctx, f)
	if err != nil {
		return nil, err
	}

	resolved := s.resolveSessions(ctx, sessions, language)
	return &types.BuildStatsResult{
		Questions:  stats.Questions(resolved),
		Procedures: stats.Procedures(resolved),
		Sessions:   len(resolved),
	}, nil
}

// ResolveTenant maps a bearer token to the tenant scope applied to read
// queries. An empty token yields an unscoped query.
func (s *Service) ResolveTenant(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	s.mu.RLock()
	verifier := s.verifier
	s.mu.RUnlock()
	if verifier == nil {
		return "", auth.ErrInvalidToken
	}
	identity, err := verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	return identity.TenantID, nil
}

// Export streams every session matching the filter as CSV.
func (s *Service) Export(ctx context.Context, f types.SessionFilter, w io.Writer) error {
	f.Page = 1
	f.Limit = s.statsSessionCap
	sessions, err := s.store.ListSessions(ctx, f)
	if err != nil {
		return err
	}
	return export.WriteCSV(w, sessions)
}

// resolveSessions maps sessions through their build's metadata bundle.
// Sessions whose build has no bundle pass through unresolved.
func (s *Service) resolveSessions(ctx context.Context, sessions []model.SessionRecord, language string) []metadata.ResolvedSession {
	resolved := make([]metadata.ResolvedSession, 0, len(sessions))
	bundleCache := make(map[string]metadata.Bundle)

	for _, session := range sessions {
		key := session.Build.ProgressKey()
		bundle, ok := bundleCache[key]
		if !ok {
			b, exists, err := s.bundles.Get(ctx, session.Build.ContainerID, session.Build.Type, session.Build.Name)
			if err != nil || !exists {
				if err != nil {
					s.logger.Warn(ctx, "bundle load failed, resolution degraded",
						logger.String("progressKey", key),
						logger.Error(err),
					)
				}
				metrics.RecordResolverMiss()
				b = nil
			}
			bundle = b
			bundleCache[key] = bundle
		}
		resolved = append(resolved, metadata.ResolveAll(session, bundle, language))
	}
	return resolved
}

func (s *Service) language(requested string) string {
	if requested == "" {
		return s.defaultLanguage
	}
	return metadata.NormalizeLanguage(requested)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	result := map[string]interface{}{
		"started":         s.started,
		"defaultLanguage": s.defaultLanguage,
		"maxPageSize":     s.maxPageSize,
	}

	if s.started {
		sessions, progressRows, err := s.store.Totals(ctx)
		if err == nil {
			result["totalSessions"] = sessions
			result["totalProgressRecords"] = progressRows

			metrics.UpdateTotalSessions(sessions)
			metrics.UpdateTotalProgressRecords(progressRows)
		}
		bundles := s.bundles.Count(ctx)
		result["bundlesLoaded"] = bundles
		metrics.UpdateBundlesLoaded(bundles)
	}

	return result
}
