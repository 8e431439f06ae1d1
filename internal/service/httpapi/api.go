// Package httpapi публикует сервис заказов по HTTP (gin). Все правила
// валидации живут в сервисе, здесь только разбор запросов, авторизация
// по bearer-токену и отображение ошибок в ответы.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/auth"
	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
)

// Authenticator выдаёт, проверяет и отзывает bearer-токены.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
	Logout(ctx context.Context, token string) error
}

// Config - настройки HTTP API.
type Config struct {
	// RequireAuth требует токен на всех ресурсных endpoint'ах, а не только на /orders/.
	RequireAuth bool
	// CORSOrigins - разрешённые источники. Пусто - CORS выключен, "*" - любой источник.
	CORSOrigins []string
}

// API - HTTP-обработчики сервиса заказов.
type API struct {
	orders  *orders.Service
	auth    Authenticator
	metrics *metrics.HTTPMetrics
	logger  *log.Entry
	cfg     Config
}

// New создаёт API. m может быть nil.
func New(svc *orders.Service, authenticator Authenticator, m *metrics.HTTPMetrics, cfg Config, logger *log.Entry) *API {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &API{
		orders:  svc,
		auth:    authenticator,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
}

// access - требование к аутентификации endpoint'а.
type access int

const (
	// accessPublic - токен не нужен никогда.
	accessPublic access = iota
	// accessResource - токен нужен только при Config.RequireAuth.
	accessResource
	// accessPrincipal - токен нужен всегда: обработчик работает от имени вызывающего.
	accessPrincipal
)

func (a access) String() string {
	switch a {
	case accessPublic:
		return "public"
	case accessPrincipal:
		return "principal"
	default:
		return "resource"
	}
}

type route struct {
	method  string
	path    string
	access  access
	handler gin.HandlerFunc
}

// routes - таблица маршрутов и политики доступа.
func (a *API) routes() []route {
	return []route{
		{http.MethodGet, "/users", accessResource, a.listUsers},
		{http.MethodPost, "/users", accessPublic, a.createUser},
		{http.MethodGet, "/users/:id", accessResource, a.getUser},
		{http.MethodPut, "/users/:id", accessResource, a.updateUser(false)},
		{http.MethodPatch, "/users/:id", accessResource, a.updateUser(true)},
		{http.MethodDelete, "/users/:id", accessResource, a.deleteUser},

		{http.MethodGet, "/orders", accessPrincipal, a.listOwnOrders},
		{http.MethodPost, "/orders", accessPrincipal, a.createOwnOrder},
		{http.MethodGet, "/orders/:id", accessResource, a.getOrder},
		{http.MethodPut, "/orders/:id", accessResource, a.updateOrder(false)},
		{http.MethodPatch, "/orders/:id", accessResource, a.updateOrder(true)},
		{http.MethodDelete, "/orders/:id", accessResource, a.deleteOrder},
		{http.MethodGet, "/orders/:id/timeline", accessResource, a.orderTimeline},
		{http.MethodPost, "/orders/:id/checkout", accessResource, a.checkoutOrder},

		{http.MethodGet, "/cart-items", accessResource, a.listCartItems},
		{http.MethodPost, "/cart-items", accessResource, a.createCartItem},
		{http.MethodGet, "/cart-items/:id", accessResource, a.getCartItem},
		{http.MethodPut, "/cart-items/:id", accessResource, a.updateCartItem(false)},
		{http.MethodPatch, "/cart-items/:id", accessResource, a.updateCartItem(true)},
		{http.MethodDelete, "/cart-items/:id", accessResource, a.deleteCartItem},

		{http.MethodPost, "/checkout", accessResource, a.checkout},
		{http.MethodPost, "/login", accessPublic, a.login},
		{http.MethodPost, "/logout", accessPrincipal, a.logout},
	}
}

func (a *API) protected(r route) bool {
	return r.access == accessPrincipal || (r.access == accessResource && a.cfg.RequireAuth)
}

// Handler собирает gin-роутер. Каждый маршрут доступен со слэшем на конце и без него.
func (a *API) Handler() http.Handler {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.HandleMethodNotAllowed = true
	engine.Use(a.recoverer(), a.observe())
	if mw := a.corsMiddleware(); mw != nil {
		engine.Use(mw)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "resource not found", Kind: domain.KindNotFound})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Kind: domain.KindValidation})
	})

	var protectedRoutes []string
	for _, r := range a.routes() {
		handlers := []gin.HandlerFunc{r.handler}
		if a.protected(r) {
			handlers = []gin.HandlerFunc{a.requirePrincipal, r.handler}
			protectedRoutes = append(protectedRoutes, r.method+" "+r.path+"/")
		}
		engine.Handle(r.method, r.path, handlers...)
		engine.Handle(r.method, r.path+"/", handlers...)
	}

	a.logger.WithFields(log.Fields{
		"require_all": a.cfg.RequireAuth,
		"protected":   protectedRoutes,
	}).Info("auth policy")
	return engine
}

func (a *API) corsMiddleware() gin.HandlerFunc {
	if len(a.cfg.CORSOrigins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(a.cfg.CORSOrigins) == 1 && a.cfg.CORSOrigins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = a.cfg.CORSOrigins
	}
	return cors.New(cfg)
}

// observe пишет метрики и access-лог по каждому запросу.
func (a *API) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		a.metrics.Started()

		c.Next()

		route := strings.TrimSuffix(c.FullPath(), "/")
		status := c.Writer.Status()
		latency := time.Since(start)
		a.metrics.Observe(c.Request.Method, route, status, latency)

		entry := a.logger.WithFields(log.Fields{
			"method":  c.Request.Method,
			"route":   route,
			"status":  status,
			"latency": latency,
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request completed")
			return
		}
		entry.Debug("request completed")
	}
}

func (a *API) recoverer() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.WithFields(log.Fields{
					"panic": rec,
					"route": c.FullPath(),
				}).Error("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Error: internalErrorMessage,
					Kind:  domain.KindInternal,
				})
			}
		}()
		c.Next()
	}
}

const (
	principalKey = "orderdesk.principal"
	tokenKey     = "orderdesk.token"
)

// requirePrincipal проверяет bearer-токен и кладёт вызывающего в контекст запроса.
func (a *API) requirePrincipal(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	principal, err := a.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.Set(principalKey, principal)
	c.Set(tokenKey, token)
	c.Next()
}

// bearerToken достаёт токен из заголовка "Bearer <t>" или "Token <t>".
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	if !strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "Token") {
		return ""
	}
	return strings.TrimSpace(token)
}

func principalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}
