package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/newtube/newtube/internal/auth"
	"github.com/newtube/newtube/internal/category"
	"github.com/newtube/newtube/internal/comment"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/playlist"
	"github.com/newtube/newtube/internal/ratelimit"
	"github.com/newtube/newtube/internal/subscription"
	"github.com/newtube/newtube/internal/user"
	"github.com/newtube/newtube/internal/video"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB               database.DBTX
	Pinger           Pinger
	Storage          video.ObjectStorage
	JWTSecret        string
	BaseURL          string
	MaxUploadBytes   int64
	S3PublicEndpoint string
	Generator        video.Generator
	Locator          video.Locator
	WebhookSecret    string
}

type Server struct {
	router              chi.Router
	pinger              Pinger
	authHandler         *auth.Handler
	videoHandler        *video.Handler
	commentHandler      *comment.Handler
	subscriptionHandler *subscription.Handler
	playlistHandler     *playlist.Handler
	categoryHandler     *category.Handler
	userHandler         *user.Handler
	limiters            []*ratelimit.Limiter
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.S3PublicEndpoint,
	}))

	s := &Server{router: r, pinger: cfg.Pinger}

	if cfg.DB != nil {
		jwtSecret := cfg.JWTSecret
		if jwtSecret == "" {
			log.Fatal("JWT_SECRET is required; set the environment variable")
		}

		secureCookies := strings.HasPrefix(cfg.BaseURL, "https://")
		s.authHandler = auth.NewHandler(cfg.DB, jwtSecret, secureCookies)

		s.videoHandler = video.NewHandler(cfg.DB, cfg.Storage, cfg.MaxUploadBytes)
		if cfg.Generator != nil {
			s.videoHandler.SetGenerator(cfg.Generator)
		}
		if cfg.Locator != nil {
			s.videoHandler.SetLocator(cfg.Locator)
		}
		s.videoHandler.SetWebhookSecret(cfg.WebhookSecret)

		s.commentHandler = comment.NewHandler(cfg.DB)
		s.subscriptionHandler = subscription.NewHandler(cfg.DB)
		s.playlistHandler = playlist.NewHandler(cfg.DB, cfg.Storage)
		s.categoryHandler = category.NewHandler(cfg.DB)
		s.userHandler = user.NewHandler(cfg.DB)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter cleanup goroutines.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Close()
	}
}

func (s *Server) limiter(requestsPerSecond float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(requestsPerSecond, burst)
	s.limiters = append(s.limiters, l)
	return l
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	if s.authHandler == nil {
		return
	}

	authLimiter := s.limiter(0.5, 5)
	s.router.Route("/api/auth", func(r chi.Router) {
		r.Use(authLimiter.Middleware)
		r.Post("/register", s.authHandler.Register)
		r.Post("/login", s.authHandler.Login)
		r.Post("/refresh", s.authHandler.Refresh)
		r.Post("/logout", s.authHandler.Logout)
		r.With(s.authHandler.Middleware).Get("/me", s.authHandler.Me)
	})

	mutationLimiter := s.limiter(2, 10)
	viewLimiter := s.limiter(1, 5)

	s.router.Route("/api/videos", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authHandler.Optional)
			r.Get("/", s.videoHandler.Home)
			r.Get("/{id}", s.videoHandler.Get)
			r.Get("/{id}/comments", s.commentHandler.List)
			r.With(viewLimiter.Middleware).Post("/{id}/views", s.videoHandler.RecordView)
		})
		r.Group(func(r chi.Router) {
			r.Use(mutationLimiter.Middleware)
			r.Use(s.authHandler.Middleware)
			r.Post("/", s.videoHandler.Create)
			r.Patch("/{id}", s.videoHandler.Update)
			r.Delete("/{id}", s.videoHandler.Delete)
			r.Post("/{id}/reactions", s.videoHandler.React)
			r.Post("/{id}/comments", s.commentHandler.Create)
			r.Post("/{id}/thumbnail/upload-url", s.videoHandler.ThumbnailUploadURL)
			r.Post("/{id}/thumbnail/confirm", s.videoHandler.ConfirmThumbnail)
			r.Post("/{id}/thumbnail/restore", s.videoHandler.RestoreThumbnail)
			r.Post("/{id}/generate/title", s.videoHandler.GenerateTitle)
			r.Post("/{id}/generate/description", s.videoHandler.GenerateDescription)
			r.Post("/{id}/generate/thumbnail", s.videoHandler.GenerateThumbnail)
		})
	})

	s.router.Route("/api/comments/{id}", func(r chi.Router) {
		r.Use(mutationLimiter.Middleware)
		r.Use(s.authHandler.Middleware)
		r.Delete("/", s.commentHandler.Delete)
		r.Post("/reactions", s.commentHandler.React)
	})

	s.router.Route("/api/users/{userId}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authHandler.Optional)
			r.Get("/", s.userHandler.Get)
			r.Get("/videos", s.videoHandler.ByUser)
		})
		r.Group(func(r chi.Router) {
			r.Use(mutationLimiter.Middleware)
			r.Use(s.authHandler.Middleware)
			r.Post("/subscription", s.subscriptionHandler.Subscribe)
			r.Delete("/subscription", s.subscriptionHandler.Unsubscribe)
		})
	})

	s.router.With(s.authHandler.Middleware).Get("/api/subscriptions", s.subscriptionHandler.List)
	s.router.With(s.authHandler.Middleware).Get("/api/feed/subscriptions", s.videoHandler.Subscriptions)

	s.router.Route("/api/playlists", func(r chi.Router) {
		r.Use(s.authHandler.Middleware)
		r.Get("/", s.playlistHandler.List)
		r.Get("/liked", s.playlistHandler.Liked)
		r.Get("/history", s.playlistHandler.History)
		r.Get("/for-video/{videoId}", s.playlistHandler.ForVideo)
		r.Get("/{id}", s.playlistHandler.Get)
		r.Get("/{id}/videos", s.playlistHandler.Videos)
		r.Group(func(r chi.Router) {
			r.Use(mutationLimiter.Middleware)
			r.Post("/", s.playlistHandler.Create)
			r.Patch("/{id}", s.playlistHandler.Update)
			r.Delete("/{id}", s.playlistHandler.Delete)
			r.Post("/{id}/videos/{videoId}", s.playlistHandler.AddVideo)
			r.Delete("/{id}/videos/{videoId}", s.playlistHandler.RemoveVideo)
		})
	})

	s.router.Get("/api/categories", s.categoryHandler.List)
	s.router.Post("/api/webhooks/transcoder", s.videoHandler.TranscoderWebhook)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
