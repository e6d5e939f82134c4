package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"marketbaza/internal/domain"
	"marketbaza/internal/service"
	"marketbaza/internal/store"
	"marketbaza/internal/xid"
)

// maxBodyBytes caps every request body regardless of its declared type.
const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        *slog.Logger
	loginLimit    int
	secure        *secure.Secure
}

type Option func(*API)

// WithLoginLimit caps login attempts per client IP per minute.
func WithLoginLimit(perMinute int) Option {
	return func(a *API) {
		if perMinute > 0 {
			a.loginLimit = perMinute
		}
	}
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *slog.Logger, opts ...Option) *API {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logger:        logger.With("component", "httpapi"),
		loginLimit:    5,
		secure: secure.New(secure.Options{
			FrameDeny:          true,
			ContentTypeNosniff: true,
			ReferrerPolicy:     "strict-origin-when-cross-origin",
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.requestID, a.accessLog, middleware.Recoverer, a.securityHeaders, a.cors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.With(httprate.Limit(a.loginLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many login attempts"))
			}),
		)).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth())

			r.Post("/auth/logout", a.handleLogout)
			r.Get("/auth/profile", a.handleProfile)
			r.Get("/market", a.handleMarkets)
			r.Get("/products", a.handleListProducts)
			r.Get("/market-total", a.handleGetMarketTotal)

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth(domain.RoleAdmin))
				r.Post("/products", a.handleCreateProduct)
				r.Get("/market-transactions/date/{date}", a.handleTransactionsByDate)
			})

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth(domain.RoleMarket, domain.RoleAdmin))
				r.Post("/orders", a.handleCreateOrder)
				r.Post("/draft-orders", a.handleSaveDraft)
				r.Get("/draft-orders/market/{marketId}", a.handleGetDraft)
				r.Delete("/draft-orders/market/{marketId}", a.handleDeleteDraft)
				r.Post("/market-total", a.handleSaveMarketTotal)
				r.Post("/market-transactions", a.handleCreateTransaction)
			})

			r.Route("/baza", func(r chi.Router) {
				r.Use(a.requireAuth(domain.RoleBaza, domain.RoleAdmin))
				r.Get("/orders", a.handlePendingOrders)
				r.Get("/orders/{id}", a.handleGetOrder)
				r.Post("/approve/{id}", a.handleApproveOrder)
				r.Post("/clear-orders", a.handleClearOrders)
				r.Get("/prices", a.handleGetPrices)
				r.Post("/prices", a.handleSavePrices)
				r.Post("/clear-prices", a.handleClearPrices)
			})
		})
	})

	return r
}

// requireAuth resolves the bearer token into an actor. With roles given it
// also rejects actors outside that set; an actor already in the context is
// reused so nested groups only re-check the role.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok {
				authorization := strings.TrimSpace(r.Header.Get("Authorization"))
				if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
					a.writeError(w, r, http.StatusUnauthorized, errors.New("missing bearer token"))
					return
				}

				parsed, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
				if err != nil {
					a.writeError(w, r, http.StatusUnauthorized, err)
					return
				}
				actor = parsed
				r = r.WithContext(service.WithActor(r.Context(), actor))
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				a.writeError(w, r, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r)
		})
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

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		a.writeError(w, r, http.StatusBadRequest, errors.New("email and password are required"))
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidCredentials), errors.Is(err, errInactiveAccount):
			a.logger.WarnContext(r.Context(), "login rejected", "email", strings.ToLower(strings.TrimSpace(req.Email)), "reason", err.Error())
			a.writeError(w, r, http.StatusUnauthorized, err)
		default:
			a.writeError(w, r, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout acknowledges the request; tokens are stateless and clients
// drop them locally.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "logged out"})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	user, err := a.auth.Profile(r.Context(), actor)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, errInactiveAccount) {
			a.writeError(w, r, http.StatusUnauthorized, errors.New("account unavailable"))
			return
		}
		a.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := a.service.ListMarkets(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req domain.DraftSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := a.service.SaveDraft(r.Context(), req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "draft saved"})
}

func (a *API) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathID(r, "marketId")
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	lines, err := a.service.GetDraft(r.Context(), marketID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (a *API) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathID(r, "marketId")
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := a.service.DeleteDraft(r.Context(), marketID); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "draft cleared"})
}

func (a *API) handleSaveMarketTotal(w http.ResponseWriter, r *http.Request) {
	var req domain.MarketTotalRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := a.service.SaveMarketTotal(r.Context(), req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "market total saved"})
}

func (a *API) handleGetMarketTotal(w http.ResponseWriter, r *http.Request) {
	marketID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("marketId")), 10, 64)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, errors.New("marketId query parameter is required"))
		return
	}

	total, err := a.service.GetMarketTotal(r.Context(), marketID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.MarketTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	created, err := a.service.CreateMarketTransaction(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleTransactionsByDate(w http.ResponseWriter, r *http.Request) {
	txs, err := a.service.ListMarketTransactionsByDate(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (a *API) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListPendingOrders(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	detail, err := a.service.GetOrder(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleApproveOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req domain.ApproveOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	detail, err := a.service.ApproveOrder(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleClearOrders(w http.ResponseWriter, r *http.Request) {
	removed, err := a.service.ClearOrders(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "orders cleared",
		"removed": removed,
	})
}

func (a *API) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	sheet, err := a.service.GetPrices(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

func (a *API) handleSavePrices(w http.ResponseWriter, r *http.Request) {
	var req domain.PriceSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := a.service.SavePrices(r.Context(), req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "prices saved"})
}

func (a *API) handleClearPrices(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ClearPrices(r.Context()); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "prices cleared"})
}

func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := xid.Sanitize(r.Header.Get(xid.HeaderRequestID))
		if id == "" {
			id = xid.New("req")
		}
		w.Header().Set(xid.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(xid.WithRequestID(r.Context(), id)))
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(startedAt),
			"request_id", xid.RequestID(r.Context()),
		)
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.secure.Process(w, r); err != nil {
			a.writeError(w, r, http.StatusBadRequest, errors.New("request blocked"))
			return
		}
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		w.Header().Set("Vary", "Origin")

		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		status = http.StatusConflict
	}
	a.writeError(w, r, status, err)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		a.logger.ErrorContext(r.Context(), "internal error",
			"status", status,
			"error", err,
			"request_id", xid.RequestID(r.Context()),
		)
		msg = "internal server error"
	}
	writeJSON(w, status, domain.MessageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
