package internal

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"
	"os"
	"time"

	"gear-lending-api/internal/auth"
	"gear-lending-api/internal/booking"
	"gear-lending-api/internal/config"
	"gear-lending-api/internal/handlers"
	"gear-lending-api/internal/models"
	"gear-lending-api/internal/notify"
	"gear-lending-api/internal/settings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	DB         *sql.DB
	Pool       *pgxpool.Pool
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Store      *PGStore
	Settings   *settings.Provider
	Booking    *booking.Service
	Notifier   notify.Notifier
}

func NewServer(dsn string, cfg *config.Config) *Server {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("Failed to open database connection:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Database ping failed:", err)
	}

	// Also create a pgxpool for the importer
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal("Failed to create pgxpool:", err)
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)

	// Initialize metrics
	metrics := NewMetrics()

	store := NewPGStore(db)
	provider := settings.NewProvider(store, cfg.SettingsTimeout)
	notifier := &notify.LogNotifier{}
	bookingService := booking.NewService(store, booking.NewValidator(provider, store), notifier, metrics)

	s := &Server{
		DB:         db,
		Pool:       pool,
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
		Metrics:    metrics,
		Store:      store,
		Settings:   provider,
		Booking:    bookingService,
		Notifier:   notifier,
	}

	s.Router.Use(RequestID)

	// Mount public routes FIRST (no auth middleware)
	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.PingContext(ctx); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if _, err := w.Write([]byte("db: ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Public auth routes (no JWT required)
	s.Router.Post("/auth/register", s.registerUser)
	s.Router.Post("/auth/login", s.loginUser)
	s.mountDocs(s.Router)

	// Mount metrics if enabled
	if os.Getenv("ENABLE_METRICS") == "true" {
		s.Router.Use(s.Metrics.Middleware)
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	// Create a protected route group with middleware
	s.Router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		r.Use(s.withRLSSession)

		s.mountProtectedRoutes(r)
	})

	return s
}

// Close properly shuts down the server and cleans up resources
func (s *Server) Close(ctx context.Context) error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// withRLSSession pins a DB connection carrying the requester's identity so
// row-level security policies apply for the rest of the request.
func (s *Server) withRLSSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserIDFromContext(r.Context())
		conn, ctx2, err := withDBConn(r.Context(), s.DB, userID)
		if err != nil {
			http.Error(w, "db acquire: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if conn != nil {
			defer conn.Close()
		}
		next.ServeHTTP(w, r.WithContext(ctx2))
	})
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	if os.Getenv("ENABLE_SWAGGER") != "true" {
		return
	}

	// Serve the raw YAML
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	// Serve Swagger UI page
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Gear Lending API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { background: #1f2937; border-bottom: 3px solid #3b82f6; }
        .swagger-ui .topbar .download-url-wrapper { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIBundle.presets.standalone
                ],
                layout: "StandaloneLayout",
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// mountProtectedRoutes mounts all routes that require authentication
func (s *Server) mountProtectedRoutes(r chi.Router) {
	staff := auth.MustTier(models.TierStaff)
	admin := auth.MustTier(models.TierAdmin)

	// Equipment catalog - browsing is open to every signed-in user,
	// write operations are admin only
	r.Get("/equipment", s.listEquipment)
	r.Get("/equipment/{id}", s.getEquipment)
	r.Get("/categories", s.listCategories)
	r.Post("/equipment", admin(http.HandlerFunc(s.createEquipment)).(http.HandlerFunc))
	r.Put("/equipment/{id}", admin(http.HandlerFunc(s.updateEquipment)).(http.HandlerFunc))
	r.Delete("/equipment/{id}", admin(http.HandlerFunc(s.deleteEquipment)).(http.HandlerFunc))

	// Reservations
	r.Post("/reservations", s.createReservation)
	r.Get("/reservations", s.listReservations)
	r.Get("/reservations/{id}", s.getReservation)
	r.Post("/reservations/{id}/cancel", s.cancelReservation)
	r.Post("/reservations/approve", staff(http.HandlerFunc(s.approveReservations)).(http.HandlerFunc))
	r.Post("/reservations/reject", staff(http.HandlerFunc(s.rejectReservations)).(http.HandlerFunc))
	r.Post("/reservations/{id}/reject", staff(http.HandlerFunc(s.rejectReservation)).(http.HandlerFunc))
	r.Post("/reservations/{id}/convert", staff(http.HandlerFunc(s.convertReservation)).(http.HandlerFunc))

	// Loans
	r.Post("/loans", s.createLoan)
	r.Get("/loans", s.listLoans)
	r.Get("/loans/{id}", s.getLoan)
	r.Post("/loans/approve", staff(http.HandlerFunc(s.approveLoans)).(http.HandlerFunc))
	r.Post("/loans/reject", staff(http.HandlerFunc(s.rejectLoans)).(http.HandlerFunc))
	r.Post("/loans/{id}/reject", staff(http.HandlerFunc(s.rejectLoan)).(http.HandlerFunc))
	r.Post("/loans/{id}/return", staff(http.HandlerFunc(s.processReturn)).(http.HandlerFunc))

	// User management - staff approve/suspend, admin role changes
	r.Get("/users", staff(http.HandlerFunc(s.listUsers)).(http.HandlerFunc))
	r.Get("/users/{id}", staff(http.HandlerFunc(s.getUser)).(http.HandlerFunc))
	r.Post("/users/{id}/approve", staff(http.HandlerFunc(s.approveUser)).(http.HandlerFunc))
	r.Post("/users/{id}/suspend", staff(http.HandlerFunc(s.suspendUser)).(http.HandlerFunc))
	r.Put("/users/{id}", admin(http.HandlerFunc(s.updateUser)).(http.HandlerFunc))

	// Staff audit trail and reporting
	r.Get("/activity", staff(http.HandlerFunc(s.listActivity)).(http.HandlerFunc))
	r.Get("/reports/summary", staff(http.HandlerFunc(s.reportSummary)).(http.HandlerFunc))

	// Operating settings - visible to staff, editable by admin
	r.Get("/settings", staff(http.HandlerFunc(s.getSettings)).(http.HandlerFunc))
	r.Put("/settings", admin(http.HandlerFunc(s.updateSettings)).(http.HandlerFunc))

	// Excel import/export - staff only
	importsHandler := handlers.NewImportsHandler(s.Pool)
	r.Post("/imports/excel", staff(http.HandlerFunc(importsHandler.UploadExcel)).(http.HandlerFunc))
	exportsHandler := handlers.NewExportsHandler(s.DB)
	r.Get("/exports/bookings.xlsx", staff(http.HandlerFunc(exportsHandler.DownloadBookings)).(http.HandlerFunc))

	// Self-service routes
	r.Get("/auth/profile", s.getUserProfile)
	r.Put("/auth/change-password", s.changePassword)
}
