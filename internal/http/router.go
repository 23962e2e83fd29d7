package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/signalhub/internal/http/handlers"
	"github.com/geocoder89/signalhub/internal/http/middlewares"
	"github.com/geocoder89/signalhub/internal/observability"
	"github.com/geocoder89/signalhub/internal/policy"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type UserStore interface {
	handlers.UserReader
	handlers.UserWriter
}

// Deps is everything the router wires into routes. Optional parts may be
// left zero: no Prom means no HTTP metrics, no AuthLimiter means no rate
// limiting on the credential endpoints.
type Deps struct {
	Env         string
	ServiceName string
	Tracing     bool

	Guard   middlewares.Authenticator
	Policy  middlewares.Authorizer
	Users   UserStore
	Tokens  handlers.TokenIssuer
	Signals handlers.SignalService
	Events  observability.Recorder

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	AuthLimiter  middlewares.Limiter
	Checks       map[string]handlers.Check
	CORSOrigins  []string
	MaxBodyBytes int64

	// TrustedProxies are the only peers whose X-Forwarded-For is believed.
	TrustedProxies []string
}

func NewRouter(log *slog.Logger, d Deps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// gin trusts every proxy unless told otherwise; the rate limiter keys on
	// the client IP it reports
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		log.Error("invalid trusted proxies, ignoring forwarded headers", "err", err)
		_ = r.SetTrustedProxies(nil)
	}

	// middleware
	r.Use(gin.Recovery())
	if d.Tracing {
		name := d.ServiceName
		if name == "" {
			name = "signalhub"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))
	if d.MaxBodyBytes > 0 {
		r.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	}
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authMW := middlewares.NewAuthMiddleware(d.Guard, d.Policy)
	protect := authMW.Protect

	// auth
	authHandler := handlers.NewAuthHandler(d.Users, d.Users, d.Tokens, d.Events)

	credentials := r.Group("/auth")
	if d.AuthLimiter != nil {
		limited := middlewares.RateLimit(d.AuthLimiter, middlewares.KeyByIP, log)
		credentials.POST("/register", limited, authHandler.Register)
		credentials.POST("/login", limited, authHandler.Login)
	} else {
		credentials.POST("/register", authHandler.Register)
		credentials.POST("/login", authHandler.Login)
	}
	credentials.GET("/user", protect(policy.AuthProfile, authHandler.Me))

	// signals
	sh := handlers.NewSignalsHandler(d.Signals)

	signals := r.Group("/signals")
	signals.GET("", protect(policy.SignalList, sh.List))
	signals.POST("", protect(policy.SignalCreate, sh.Create))
	signals.GET("/mine", protect(policy.SignalListOwn, sh.Mine))
	signals.GET("/pending", protect(policy.SignalListPending, sh.Pending))
	signals.GET("/pending/count", protect(policy.SignalCountPending, sh.PendingCount))
	signals.GET("/:id", protect(policy.SignalGet, sh.Get))
	signals.PATCH("/:id/status", protect(policy.SignalTransition, sh.UpdateStatus))
	signals.PUT("/:id", protect(policy.SignalEdit, sh.Update))
	signals.DELETE("/:id", protect(policy.SignalDelete, sh.Delete))

	return r
}

// LoginWindow is the window LOGIN_RATE_LIMIT is counted over.
const LoginWindow = time.Minute
