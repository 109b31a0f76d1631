// Package server exposes the facet engine over HTTP: stateless facet and
// listing endpoints, a server-render payload, per-user browsing sessions
// and cache administration.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/api"
	"github.com/Sternrassler/marketplace-client/pkg/browse"
	"github.com/Sternrassler/marketplace-client/pkg/cache"
	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/Sternrassler/marketplace-client/pkg/filters"
	"github.com/Sternrassler/marketplace-client/pkg/listings"
	"github.com/Sternrassler/marketplace-client/pkg/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options configures a Server.
type Options struct {
	Gateway *api.Gateway
	Schema  *filters.SchemaCache

	// Cache is purged by RunMaintenance when set
	Cache *cache.Manager

	// PageLimit is the listing page size of new sessions and the SSR payload
	PageLimit int

	// SessionIdle is how long an untouched session is kept
	SessionIdle time.Duration

	// Ready reports whether backing services are reachable; /ready always
	// succeeds when nil
	Ready func(ctx context.Context) error

	Logger *zerolog.Logger
}

// Server is the HTTP surface.
type Server struct {
	echo      *echo.Echo
	gateway   *api.Gateway
	schema    *filters.SchemaCache
	resolver  *filters.Resolver
	exporter  *listings.Coordinator
	sessions  *Sessions
	cache     *cache.Manager
	ready     func(ctx context.Context) error
	pageLimit int
	logger    zerolog.Logger
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	logger := l.With().Str("component", "http-server").Logger()

	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = catalog.DefaultPageLimit
	}
	listingOpts := listings.Options{PageLimit: pageLimit, Logger: &l}
	resolver := filters.NewResolver(opts.Schema, opts.Gateway, &l)

	s := &Server{
		echo:      echo.New(),
		gateway:   opts.Gateway,
		schema:    opts.Schema,
		resolver:  resolver,
		exporter:  listings.NewCoordinator(opts.Gateway, opts.Gateway, listingOpts),
		sessions:  NewSessions(resolver, opts.Gateway, opts.Gateway, listingOpts, opts.SessionIdle, &l),
		cache:     opts.Cache,
		ready:     opts.Ready,
		pageLimit: pageLimit,
		logger:    logger,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.logger.Debug()
			if v.Error != nil {
				ev = s.logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/ready", s.handleReady)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	cat := e.Group("/categories/:slug")
	cat.GET("/filters", s.handleFilters)
	cat.GET("/listings", s.handleListings)
	cat.GET("/export", s.handleExport)
	e.GET("/ssr/categories/:slug", s.handleSSR)

	sess := e.Group("/sessions")
	sess.POST("", s.handleCreateSession)
	sess.GET("/:id", s.withSession(s.handleGetSession))
	sess.DELETE("/:id", s.handleDeleteSession)
	sess.POST("/:id/select", s.withSession(s.handleSelect))
	sess.POST("/:id/clear", s.withSession(s.handleClear))
	sess.POST("/:id/category", s.withSession(s.handleCategory))
	sess.POST("/:id/page", s.withSession(s.handlePage))
	sess.POST("/:id/view", s.withSession(s.handleView))

	admin := e.Group("/admin")
	admin.POST("/cache/invalidate", s.handleInvalidateCache)
	admin.POST("/schema/invalidate", s.handleInvalidateSchema)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Server listening")
	return s.echo.Start(addr)
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Sessions returns the session registry.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

func (s *Server) handleReady(c echo.Context) error {
	if s.ready != nil {
		if err := s.ready(c.Request().Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Not ready")
			return c.String(http.StatusServiceUnavailable, "NOT READY")
		}
	}
	return c.String(http.StatusOK, "OK")
}

type facetsResponse struct {
	CategorySlug string                       `json:"categorySlug"`
	Attributes   []catalog.ProcessedAttribute `json:"attributes"`
	TotalResults int                          `json:"totalResults"`
}

type listingsResponse struct {
	Listings   []catalog.Listing  `json:"listings"`
	Pagination catalog.Pagination `json:"pagination"`
}

type exportResponse struct {
	CategorySlug string            `json:"categorySlug"`
	Total        int               `json:"total"`
	Listings     []catalog.Listing `json:"listings"`
}

func (s *Server) handleFilters(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	f, err := s.selection(ctx, c, slug)
	if err != nil {
		return httpError(err)
	}
	res, err := s.resolver.Resolve(ctx, slug, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, facetsResponse{
		CategorySlug: slug,
		Attributes:   res.Attributes,
		TotalResults: res.TotalResults,
	})
}

func (s *Server) handleListings(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	f, err := s.selection(ctx, c, slug)
	if err != nil {
		return httpError(err)
	}
	limit, err := queryInt(c, "limit", s.pageLimit)
	if err != nil {
		return err
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return err
	}
	p := catalog.NewPagination(limit)
	if page > 1 {
		p.Page = page
	}

	res, err := s.gateway.SearchListings(ctx, catalog.SearchRequest{
		Filters:  f,
		Limit:    p.Limit,
		Offset:   p.Offset(),
		ViewMode: catalog.ParseViewMode(c.QueryParam("view")),
	})
	if err != nil {
		return httpError(err)
	}
	p.Recompute(res.Total, len(res.Listings))
	return c.JSON(http.StatusOK, listingsResponse{Listings: res.Listings, Pagination: p})
}

func (s *Server) handleExport(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	f, err := s.selection(ctx, c, slug)
	if err != nil {
		return httpError(err)
	}
	out, err := s.exporter.ExportAll(ctx, slug, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, exportResponse{CategorySlug: slug, Total: len(out), Listings: out})
}

// handleSSR returns what a server render needs for the first paint of a
// category: resolved facets and the first listing page.
func (s *Server) handleSSR(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	f, err := s.selection(ctx, c, slug)
	if err != nil {
		return httpError(err)
	}

	var (
		res    filters.Resolution
		result catalog.SearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res, err = s.resolver.Resolve(gctx, slug, f)
		return err
	})
	g.Go(func() error {
		var err error
		result, err = s.gateway.SearchListings(gctx, catalog.SearchRequest{
			Filters:  f,
			Limit:    s.pageLimit,
			ViewMode: catalog.ViewGrid,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, browse.Payload{
		CategorySlug:  slug,
		ListingType:   f.ListingType,
		Attributes:    res.Attributes,
		TotalResults:  res.TotalResults,
		Listings:      result.Listings,
		ListingsTotal: result.Total,
	})
}

type createSessionRequest struct {
	Category    string          `json:"category"`
	ListingType string          `json:"listingType"`
	View        string          `json:"view"`
	Hydrate     *browse.Payload `json:"hydrate"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Category == "" && req.Hydrate != nil {
		req.Category = req.Hydrate.CategorySlug
		if req.ListingType == "" {
			req.ListingType = req.Hydrate.ListingType
		}
	}
	if req.Category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "category is required")
	}

	sess := s.sessions.Create()
	if req.Hydrate != nil {
		sess.HydrateFromSSR(*req.Hydrate)
	}
	if err := sess.Load(c.Request().Context(), req.Category, req.ListingType, catalog.ParseViewMode(req.View)); err != nil {
		s.sessions.Delete(sess.ID())
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if !s.sessions.Delete(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type sessionHandler func(c echo.Context, sess *browse.Session) error

// withSession resolves the :id parameter and responds with the session view
// after the handler ran.
func (s *Server) withSession(h sessionHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, ok := s.sessions.Get(c.Param("id"))
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		if err := h(c, sess); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, sess.Snapshot())
	}
}

func (s *Server) handleGetSession(echo.Context, *browse.Session) error {
	return nil
}

type selectRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) handleSelect(c echo.Context, sess *browse.Session) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	return httpError(sess.SelectOption(c.Request().Context(), req.Key, req.Value))
}

type clearRequest struct {
	Key string `json:"key"`
}

// handleClear drops one selection, or all of them without a key.
func (s *Server) handleClear(c echo.Context, sess *browse.Session) error {
	var req clearRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if req.Key == "" {
		return httpError(sess.ClearAll(ctx))
	}
	return httpError(sess.ClearFilter(ctx, req.Key))
}

type categoryRequest struct {
	Slug        string `json:"slug"`
	ListingType string `json:"listingType"`
	View        string `json:"view"`
}

func (s *Server) handleCategory(c echo.Context, sess *browse.Session) error {
	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	var mode catalog.ViewMode
	if req.View != "" {
		mode = catalog.ParseViewMode(req.View)
	}
	return httpError(sess.ChangeCategory(c.Request().Context(), req.Slug, req.ListingType, mode))
}

type pageRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// handlePage changes the page size when a limit is given, the page otherwise.
func (s *Server) handlePage(c echo.Context, sess *browse.Session) error {
	var req pageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	switch {
	case req.Limit > 0:
		return httpError(sess.SetPageSize(ctx, req.Limit))
	case req.Page > 0:
		return httpError(sess.GoToPage(ctx, req.Page))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "page or limit must be positive")
	}
}

type viewRequest struct {
	View string `json:"view"`
}

func (s *Server) handleView(c echo.Context, sess *browse.Session) error {
	var req viewRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return httpError(sess.SetViewMode(c.Request().Context(), catalog.ParseViewMode(req.View)))
}

func (s *Server) handleInvalidateCache(c echo.Context) error {
	pattern := c.QueryParam("pattern")
	if pattern == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "pattern is required")
	}
	n := s.gateway.InvalidateByPattern(c.Request().Context(), pattern)
	return c.JSON(http.StatusOK, echo.Map{"pattern": pattern, "removed": n})
}

// handleInvalidateSchema drops one category's schema, or all without a slug.
func (s *Server) handleInvalidateSchema(c echo.Context) error {
	slug := c.QueryParam("slug")
	if slug == "" {
		s.schema.InvalidateAll()
	} else {
		s.schema.Invalidate(slug)
	}
	return c.JSON(http.StatusOK, echo.Map{"slug": slug, "cached": s.schema.Len()})
}

// selection parses the filter query parameters of slug against its schema.
func (s *Server) selection(ctx context.Context, c echo.Context, slug string) (catalog.AppliedFilters, error) {
	base, err := s.schema.GetBaseAttributes(ctx, slug)
	if err != nil {
		return catalog.AppliedFilters{}, err
	}
	return ParseSelection(slug, c.QueryParams(), base)
}

func queryInt(c echo.Context, key string, def int) (int, error) {
	raw := c.QueryParam(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, key+" must be a positive integer")
	}
	return v, nil
}

// httpError maps domain errors onto HTTP statuses. Anything not caused by
// the request itself is reported as an upstream failure.
func httpError(err error) error {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case errors.Is(err, catalog.ErrInvalidFilterValue), errors.Is(err, catalog.ErrNoCategory):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
