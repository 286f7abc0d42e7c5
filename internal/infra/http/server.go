package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hsmtrust/internal/config"
	"hsmtrust/internal/domain"
	"hsmtrust/internal/infra/cesr"
	"hsmtrust/internal/infra/db"
	"hsmtrust/internal/infra/ratelimit"
	"hsmtrust/internal/infra/redisstore"
	"hsmtrust/internal/usecase"
)

type Server struct {
	cfg    config.Config
	store  *db.Store
	r      *gin.Engine
	logger *slog.Logger

	verify *usecase.KeyLogVerifier
	access *usecase.AccessKeyVerifier
	audit  *usecase.AuditEmitter

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

func NewServer(cfg config.Config, store *db.Store, logger *slog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, logger: logger}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Verify      *usecase.KeyLogVerifier
	Access      *usecase.AccessKeyVerifier
	Audit       *usecase.AuditEmitter
	RateLimiter domain.RateLimiter
	Logger      *slog.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		r:      r,
		logger: deps.Logger,
		verify: deps.Verify,
		access: deps.Access,
		audit:  deps.Audit,
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	hasher := cesr.NewBlake3Hasher()
	crypto := cesr.NewSecp256r1Verifier()

	records := redisstore.NewRecordStore(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDBHSMKeys)
	authorizations := redisstore.NewAuthorizationStore(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDBAccessKeys)

	cache := usecase.NewKeyCache(s.cfg.FreshnessWindow(), nil)
	s.verify = usecase.NewKeyLogVerifier(records, hasher, crypto, cache)
	s.access = usecase.NewAccessKeyVerifier(authorizations, s.verify, nil)

	if s.store != nil && s.store.DB != nil {
		s.audit = usecase.NewAuditEmitter(db.NewAuditEventRepository(s.store.DB), nil)
		s.verify.Audit = s.audit
	}

	s.initRateLimit(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDBRateLimit, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	if s.logger != nil {
		s.r.Use(s.requestLog)
	}

	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/verify", s.handleVerify)
		v1.GET("/access-keys/:identity", s.handleAccessKey)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}
