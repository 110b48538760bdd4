package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"halcyon.studio/cinema/internal/api/handlers"
	"halcyon.studio/cinema/internal/api/middleware"
	"halcyon.studio/cinema/internal/api/openapi"
	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/ratelimit"
)

const apiBasePath = "/api"

var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

// Fallback limits when the configuration names no rule.
var defaultRules = map[string]config.RateLimitRule{
	"ip":         {Max: 120, Window: time.Minute},
	"image":      {Max: 10, Window: time.Minute},
	"music":      {Max: 5, Window: time.Minute},
	"voiceover":  {Max: 10, Window: time.Minute},
	"prediction": {Max: 30, Window: time.Minute},
}

type routerDeps struct {
	JWT     middleware.JWTConfig
	CSRF    *middleware.CSRF
	Limiter *ratelimit.Limiter
}

func newRouter(cfg *config.Config, server *handlers.Server, deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.ErrorHandler(),
		cors.New(buildCORSConfig(cfg)),
		middleware.RateLimitByIP(deps.Limiter, rateRule(cfg, "ip")),
	)
	if cfg.Server.ValidateOpenAPI {
		router.Use(middleware.MustOpenAPIValidator(apiBasePath))
	}

	api := router.Group(apiBasePath)
	api.GET("/health", server.GetHealth)
	api.GET("/profiles", server.ListProfiles)
	api.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openapi.Spec())
	})

	authed := api.Group("", middleware.JWTAuth(deps.JWT), deps.CSRF.Require())
	authed.GET("/csrf", server.GetCSRFToken)
	authed.POST("/produce-episode", server.ProduceEpisode)
	authed.GET("/productions/:id", server.GetProduction)
	authed.GET("/productions/:id/events", server.StreamProduction)
	authed.POST("/generate/image", userLimit(cfg, deps.Limiter, "image"), server.GenerateImage)
	authed.POST("/generate/music", userLimit(cfg, deps.Limiter, "music"), server.GenerateMusic)
	authed.POST("/generate/voiceover", userLimit(cfg, deps.Limiter, "voiceover"), server.GenerateVoiceover)
	authed.GET("/predictions/:id", userLimit(cfg, deps.Limiter, "prediction"), server.ResumePrediction)
	authed.GET("/credits", server.GetCredits)

	admin := authed.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/credits", server.GrantCredits)
	admin.GET("/log/level", gin.WrapH(logger.HTTPHandler()))
	admin.PUT("/log/level", gin.WrapH(logger.HTTPHandler()))

	return router
}

func rateRule(cfg *config.Config, name string) middleware.RateRule {
	r := cfg.RateLimit.Rule(name, defaultRules[name])
	return middleware.RateRule{Max: r.Max, Window: r.Window}
}

func userLimit(cfg *config.Config, limiter *ratelimit.Limiter, feature string) gin.HandlerFunc {
	return middleware.RateLimitByUser(limiter, feature, rateRule(cfg, feature))
}

// buildCORSConfig drops "*" from the allowlist unless the unsafe flag is
// set, in which case every origin is allowed and credentials are off.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", middleware.CSRFHeader, middleware.RequestIDHeader)
	c.ExposeHeaders = []string{
		middleware.RequestIDHeader,
		"Location",
		"Retry-After",
		"X-RateLimit-Limit",
		"X-RateLimit-Remaining",
	}

	wildcard := false
	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			origins = append(origins, o)
		}
	}

	if wildcard && cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.Server.AllowCredentials
	return c
}
