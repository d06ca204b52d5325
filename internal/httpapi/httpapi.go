package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"biztrack/backend/internal/analytics"
	"biztrack/backend/internal/cache"
	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/service"
	"biztrack/backend/internal/store"
)

const maxRequestBody = 1 << 20

// statusClientClosedRequest follows the nginx convention for a request whose
// client went away before the response was ready.
const statusClientClosedRequest = 499

type Options struct {
	AllowedOrigin    string
	LoginAttempts    cache.AttemptCounter
	LoginMaxAttempts int
	LoginWindow      time.Duration
	// ExportWriteTimeout is the write deadline granted to each chunk of a
	// CSV export. Zero leaves the server-wide deadline in place.
	ExportWriteTimeout time.Duration
	Logger             *zap.Logger
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	exportTimeout time.Duration
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: opts.AllowedOrigin,
		loginLimiter:  newAttemptLimiter(opts.LoginAttempts, "login:", opts.LoginMaxAttempts, opts.LoginWindow, logger),
		exportTimeout: opts.ExportWriteTimeout,
		logger:        logger,
	}
}

func (a *API) Handler() *gin.Engine {
	r := gin.New()
	// Client IPs come from the socket only; forwarded headers are ignored.
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(a.securityHeaders())
	r.Use(a.requestLogger())

	r.GET("/healthz", a.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/auth/register", a.handleRegister)
	v1.POST("/auth/login", a.handleLogin)

	authed := v1.Group("", a.requireAuth())
	authed.GET("/users/me", a.handleMe)
	authed.GET("/customers", a.handleListCustomers)
	authed.POST("/customers", a.handleCreateCustomer)
	authed.GET("/sales", a.handleListSales)
	authed.POST("/sales", a.handleCreateSale)
	authed.GET("/sales/summary", a.handleSalesSummary)
	authed.GET("/sales/export", a.handleSalesExport)

	owners := v1.Group("", a.requireAuth(domain.RoleOwner))
	owners.GET("/users/staff", a.handleListStaff)
	owners.POST("/users/staff", a.handleCreateStaff)

	r.NoRoute(func(c *gin.Context) {
		a.writeError(c, http.StatusNotFound, errors.New("route not found"))
	})

	return r
}

func (a *API) requireAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			c.Abort()
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.writeError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(c, http.StatusForbidden, service.ErrForbidden)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func actorFrom(c *gin.Context) domain.Actor {
	actor, _ := service.ActorFromContext(c.Request.Context())
	return actor
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(c *gin.Context) {
	var req domain.RegisterRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		a.writeError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Register(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.Request.Context(), c.ClientIP()) {
		a.writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		a.writeError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleMe(c *gin.Context) {
	user, err := a.auth.Me(c.Request.Context(), actorFrom(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (a *API) handleListStaff(c *gin.Context) {
	staff, err := a.auth.ListStaff(c.Request.Context(), actorFrom(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staff": staff})
}

func (a *API) handleCreateStaff(c *gin.Context) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		a.writeError(c, http.StatusBadRequest, err)
		return
	}

	user, err := a.auth.CreateStaff(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (a *API) handleListCustomers(c *gin.Context) {
	customers, err := a.service.ListCustomers(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (a *API) handleCreateCustomer(c *gin.Context) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		a.writeError(c, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.CreateCustomer(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"customer": customer})
}

func (a *API) handleListSales(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 100, 500)
	sales, err := a.service.ListSales(c.Request.Context(), limit)
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]saleResponse, 0, len(sales))
	for _, sale := range sales {
		out = append(out, toSaleResponse(sale))
	}
	c.JSON(http.StatusOK, gin.H{"sales": out})
}

func (a *API) handleCreateSale(c *gin.Context) {
	var req domain.SaleCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		a.writeError(c, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.CreateSale(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sale": toSaleResponse(sale)})
}

// An absent range means 7d. A range that is present but unknown, including
// an empty one, is rejected.
func (a *API) handleSalesSummary(c *gin.Context) {
	period := c.DefaultQuery("range", analytics.Period7d)
	summary, err := a.service.Summary(c.Request.Context(), period)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSummaryResponse(summary))
}

func (a *API) handleSalesExport(c *gin.Context) {
	window, err := a.service.ExportWindow(c.DefaultQuery("range", analytics.Period7d))
	if err != nil {
		a.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="sales_%s.csv"`, window.Period))
	c.Header("Cache-Control", "no-store")

	var out io.Writer = c.Writer
	if a.exportTimeout > 0 {
		out = a.newDeadlineWriter(c.Writer, a.exportTimeout)
	}

	rows, err := a.service.ExportSales(c.Request.Context(), window, out)
	if err == nil {
		return
	}
	if !c.Writer.Written() {
		header := c.Writer.Header()
		header.Del("Content-Type")
		header.Del("Content-Disposition")
		a.fail(c, err)
		return
	}
	// The status line is already on the wire; all that is left is to stop.
	logTruncated := a.logger.Error
	if errors.Is(err, context.Canceled) {
		logTruncated = a.logger.Info
	}
	logTruncated("sales export truncated",
		zap.String("range", window.Period),
		zap.Int("rows", rows),
		zap.Error(err))
	c.Abort()
}

// deadlineWriter pushes the connection's write deadline forward before each
// write, so a long export is bounded per chunk rather than as a whole.
type deadlineWriter struct {
	w           io.Writer
	step        time.Duration
	setDeadline func(time.Time) error
	now         func() time.Time
	logger      *zap.Logger
	unsupported bool
}

func (a *API) newDeadlineWriter(w gin.ResponseWriter, step time.Duration) *deadlineWriter {
	return &deadlineWriter{
		w:           w,
		step:        step,
		setDeadline: http.NewResponseController(w).SetWriteDeadline,
		now:         time.Now,
		logger:      a.logger,
	}
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if !d.unsupported {
		if err := d.setDeadline(d.now().Add(d.step)); err != nil {
			// Keep writing under the server-wide deadline.
			d.unsupported = true
			d.logger.Warn("export write deadline not extended", zap.Error(err))
		}
	}
	return d.w.Write(p)
}

func (a *API) securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		header.Set("Cross-Origin-Opener-Policy", "same-origin")
		header.Set("Access-Control-Allow-Origin", a.allowedOrigin)
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		header.Set("Access-Control-Expose-Headers", "Content-Disposition")
		header.Set("Vary", "Origin")

		if c.Request.Method == http.MethodPost && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		a.logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func statusFor(err error) int {
	switch {
	// Checked first: store errors wrap the context error of a dropped request.
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, analytics.ErrInvalidPeriod), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(c *gin.Context, err error) {
	a.writeError(c, statusFor(err), err)
}

func (a *API) writeError(c *gin.Context, status int, err error) {
	msg := err.Error()
	if status == statusClientClosedRequest {
		a.logger.Debug("request canceled by client",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.AbortWithStatus(status)
		return
	}
	if status >= 500 {
		a.logger.Error("request failed",
			zap.Int("status", status),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		msg = "internal server error"
		if status == http.StatusServiceUnavailable {
			msg = "service temporarily unavailable"
		}
	}
	c.JSON(status, gin.H{"error": msg})
}
