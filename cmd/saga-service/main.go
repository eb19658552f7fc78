package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/config"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/domain"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/events"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/idempotency"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/inventory"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/notification"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/payment"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/readmodel"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/saga"
	kafkapkg "github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/kafka"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/logging"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/metrics"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/outbox"
)

const sagaTimeout = 60 * time.Second

type app struct {
	log    *zap.Logger
	orch   *saga.Orchestrator
	orders saga.OrderStore
	stock  stockAdmin
	cache  *readmodel.Cache // nil without Redis
	sm     *metrics.ServerMetrics
}

// stockAdmin is the dev/ops surface for seeding stock records; both engines
// provide it outside the Engine interface.
type stockAdmin interface {
	Upsert(ctx context.Context, rec inventory.Record) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New("saga-service")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sm := metrics.NewServerMetrics("saga")
	sagaMetrics := metrics.NewSagaMetrics("saga")
	invMetrics := metrics.NewInventoryMetrics("saga")

	var (
		pool    *pgxpool.Pool
		sagas   saga.Store
		pgSagas *saga.PGStore
		orders  saga.OrderStore
		engine  inventory.Engine
		admin   stockAdmin
		guard   idempotency.Guard
		inbox   events.Inbox
	)
	if cfg.DatabaseURL != "" {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err = pgxpool.New(initCtx, cfg.DatabaseURL)
		if err == nil {
			err = pool.Ping(initCtx)
		}
		cancel()
		if err != nil {
			log.Fatal("database unavailable", zap.Error(err))
		}
		defer pool.Close()

		pgSagas = saga.NewPGStore(pool)
		sagas = pgSagas
		orders = saga.NewPGOrderStore(pool)
		pgEngine := inventory.NewPGEngine(pool)
		engine = pgEngine
		admin = pgUpserter{pgEngine}
		guard = idempotency.NewPGGuard(pool)
		inbox = events.NewPGInbox(pool)
		log.Info("running against postgres")
	} else {
		sagas = saga.NewMemoryStore()
		orders = saga.NewMemoryOrderStore()
		memEngine := inventory.NewMemoryEngine()
		engine = memEngine
		admin = memUpserter{memEngine}
		guard = idempotency.NewMemoryGuard()
		inbox = events.NewMemoryInbox()
		log.Warn("DATABASE_URL not set, running fully in memory")
	}
	engine = inventory.Instrument(engine, invMetrics)

	var cache *readmodel.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("bad REDIS_URL", zap.Error(err))
		}
		cache = readmodel.NewCache(redis.NewClient(opts), 0)
	}

	bus := events.NewBus(log, 8)
	handlers := []events.Handler{
		notification.NewHandler(notification.NewLogProvider(log), inbox),
	}
	if cache != nil {
		handlers = append(handlers, readmodel.NewHandler(cache))
	}
	for _, h := range handlers {
		bus.Register(h)
	}
	bus.Start(ctx)

	var publisher events.Publisher = bus
	kc := kafkapkg.NewClient(cfg.KafkaBrokers)
	if kc.Enabled() && pool != nil {
		publisher = events.NewOutboxPublisher(pool, cfg.EventsTopic, bus)
		// Terminal and step events ride in the saga state transaction.
		pgSagas.WithOutbox(cfg.EventsTopic)

		writer := kc.NewWriter(cfg.EventsTopic)
		defer func() { _ = writer.Close() }()
		relay := outbox.NewRelay(pool, func(ctx context.Context, topic, key string, payload []byte) error {
			return kafkapkg.PublishRaw(ctx, writer, key, payload)
		}, log, time.Second, 100)
		go relay.Run(ctx)

		consumer := events.NewConsumer(kc.NewReader(cfg.EventsTopic, cfg.GroupID), handlers, log)
		defer func() { _ = consumer.Close() }()
		go consumer.Run(ctx)
	}

	var payments payment.Provider = payment.NewStub()
	if cfg.PaymentBaseURL != "" {
		payments = payment.NewHTTPProvider(cfg.PaymentBaseURL, cfg.RequestTimeout())
	}

	orch := saga.New(saga.Deps{
		Orders:   orders,
		Sagas:    sagas,
		Stock:    engine,
		Payments: payments,
		Notifier: notification.NewLogProvider(log),
		Bus:      publisher,
		Guard:    guard,
		Log:      log,
		Metrics:  sagaMetrics,
	}, saga.Options{
		ReservationTTL: cfg.ReservationTTL(),
		RetryMax:       cfg.StepRetryMax,
		RetryBase:      cfg.StepRetryBase(),
	})

	// Drive sagas interrupted by the previous run to a terminal state.
	go func() {
		n, err := orch.Recover(ctx, 500)
		if err != nil {
			log.Error("recovery sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("recovered unfinished sagas", zap.Int("count", n))
		}
	}()

	sweeper := inventory.NewSweeper(engine, log, invMetrics, publisher, cfg.SweepInterval(), 200)
	go sweeper.Run(ctx)

	a := &app{log: log, orch: orch, orders: orders, stock: admin, cache: cache, sm: sm}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", a.instrument("checkout", a.handleCheckout))
	mux.HandleFunc("GET /orders/{id}", a.instrument("order_status", a.handleOrderStatus))
	mux.HandleFunc("POST /stock", a.instrument("stock_upsert", a.handleStockUpsert))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("saga service listening", zap.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
	bus.Wait()
}

type pgUpserter struct{ e *inventory.PGEngine }

func (u pgUpserter) Upsert(ctx context.Context, rec inventory.Record) error {
	return u.e.UpsertRecord(ctx, rec)
}

type memUpserter struct{ e *inventory.MemoryEngine }

func (u memUpserter) Upsert(ctx context.Context, rec inventory.Record) error {
	u.e.SetStock(rec.ProductID, rec.Location, rec.CurrentStock)
	return nil
}

type checkoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type checkoutRequest struct {
	OrderID     string         `json:"order_id"`
	UserID      string         `json:"user_id"`
	Currency    string         `json:"currency"`
	TotalAmount int64          `json:"total_amount"`
	Items       []checkoutItem `json:"items"`
}

type checkoutResponse struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

func (a *app) handleCheckout(w http.ResponseWriter, r *http.Request) {
	idemKey := idempotency.KeyFromRequest(r)
	if idemKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": idempotency.Header + " header is required"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	order := &domain.Order{
		ID:             domain.OrderID(req.OrderID),
		UserID:         domain.UserID(req.UserID),
		Currency:       req.Currency,
		TotalAmount:    req.TotalAmount,
		IdempotencyKey: idemKey,
		Status:         domain.OrderStatusPending,
	}
	if order.ID == "" {
		order.ID = domain.OrderID(uuid.NewString())
	}
	for _, it := range req.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: domain.ProductID(it.ProductID),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	// A dropped client connection must not abort a saga mid-payment.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), sagaTimeout)
	defer cancel()

	res, err := a.orch.Start(ctx, order)
	switch {
	case err == nil:
	case errors.Is(err, saga.ErrSagaInFlight):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "a submission with this idempotency key is still processing",
			"order_id": res.OrderID,
		})
		return
	default:
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "field": verr.Field})
			return
		}
		a.log.Error("checkout failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	} else if res.Status == string(domain.OrderStatusCancelled) {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, checkoutResponse{
		OrderID:  res.OrderID,
		Status:   res.Status,
		Reason:   res.Reason,
		Replayed: res.Replayed,
	})
}

func (a *app) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a.cache != nil {
		view, err := a.cache.Get(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, view)
			return
		}
		if !errors.Is(err, readmodel.ErrNotCached) {
			a.log.Warn("read model lookup failed", zap.Error(err))
		}
	}

	order, err := a.orders.Get(r.Context(), domain.OrderID(id))
	if errors.Is(err, saga.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "order not found"})
		return
	}
	if err != nil {
		a.log.Error("order lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, readmodel.OrderView{
		OrderID:   string(order.ID),
		Status:    string(order.Status),
		UpdatedAt: order.UpdatedAt,
	})
}

type stockUpsertRequest struct {
	ProductID    string `json:"product_id"`
	Location     string `json:"location"`
	CurrentStock int32  `json:"current_stock"`
	MinimumStock int32  `json:"minimum_stock"`
	MaximumStock int32  `json:"maximum_stock"`
	ReorderPoint int32  `json:"reorder_point"`
}

func (a *app) handleStockUpsert(w http.ResponseWriter, r *http.Request) {
	var req stockUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.ProductID == "" || req.CurrentStock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "product_id is required and current_stock must be >= 0"})
		return
	}
	if req.Location == "" {
		req.Location = "main"
	}
	err := a.stock.Upsert(r.Context(), inventory.Record{
		ProductID:    req.ProductID,
		Location:     req.Location,
		CurrentStock: req.CurrentStock,
		MinimumStock: req.MinimumStock,
		MaximumStock: req.MaximumStock,
		ReorderPoint: req.ReorderPoint,
	})
	if err != nil {
		a.log.Error("stock upsert failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *app) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		a.sm.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		a.sm.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
