package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"glrssign/internal/agreement"
	"glrssign/internal/config"
	"glrssign/internal/database"
	"glrssign/internal/export"
	"glrssign/internal/models"
	"glrssign/internal/notify"
	"glrssign/internal/query"
	"glrssign/internal/server/routes"
	"glrssign/internal/storage"
)

type Server struct {
	cfg        *config.Config
	db         database.Service
	models     *models.DB
	agreements *agreement.Service
	queries    *query.Service
	hub        *query.Hub
	gateway    *notify.Gateway
	exporter   *export.Exporter
	scheduler  *notify.Scheduler
}

// NewServer wires the agreement services onto the database and object storage.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db := database.New()

	modelDB, err := models.NewDB(db.DB())
	if err != nil {
		return nil, err
	}

	s3Service, err := storage.NewS3Service(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 service: %w", err)
	}

	gateway := notify.NewGateway(cfg.SigningBaseURL, db)
	exporter := export.NewExporter(export.NewHTTPRenderer(cfg.RendererURL, cfg.RendererTimeout), s3Service, db)
	scheduler, err := notify.NewScheduler(cfg.ReminderSchedule, cfg.ReminderInterval, gateway, db)
	if err != nil {
		return nil, err
	}
	hub := query.NewHub()

	return &Server{
		cfg:    cfg,
		db:     db,
		models: modelDB,
		agreements: agreement.NewService(db,
			agreement.WithNotifier(gateway),
			agreement.WithFinalizer(exporter),
			agreement.WithTTL(cfg.AgreementTTL),
		),
		queries:   query.NewService(db, hub, cfg.QueryRefresh, cfg.QueryPageSize),
		hub:       hub,
		gateway:   gateway,
		exporter:  exporter,
		scheduler: scheduler,
	}, nil
}

// HTTPServer returns the API server listening on the configured port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RunFeed fans database change notifications out to live subscribers.
func (s *Server) RunFeed(ctx context.Context) error {
	return s.hub.Run(ctx, s.db)
}

// RunScheduler runs the reminder sweep on its cron schedule.
func (s *Server) RunScheduler(ctx context.Context) error {
	return s.scheduler.Run(ctx)
}

func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) GetDB() database.Service {
	return s.db
}

func (s *Server) Directory() routes.Directory {
	return staffDirectory{db: s.models}
}

func (s *Server) Templates() routes.TemplateStore {
	return s.models.Templates
}

func (s *Server) Agreements() *agreement.Service {
	return s.agreements
}

func (s *Server) Queries() *query.Service {
	return s.queries
}

func (s *Server) Gateway() *notify.Gateway {
	return s.gateway
}

func (s *Server) Exporter() *export.Exporter {
	return s.exporter
}

func (s *Server) FrontendURL() string {
	return s.cfg.FrontendURL
}

// staffDirectory answers the route layer's user and tenant lookups from gorm.
type staffDirectory struct {
	db *models.DB
}

func (d staffDirectory) UpsertUser(u *models.User) (bool, error) {
	return d.db.Users.UpsertFromProvider(u)
}

func (d staffDirectory) GetUser(id int) (*models.User, error) {
	return d.db.Users.Get(id)
}

func (d staffDirectory) ActiveTenants(userID int) ([]models.UserTenant, error) {
	return d.db.Users.ActiveTenants(userID)
}

func (d staffDirectory) GetTenant(id uuid.UUID) (*models.Tenant, error) {
	return d.db.Tenants.Get(id)
}

func (d staffDirectory) GetMembership(userID int, tenantID uuid.UUID) (*models.TenantMembership, error) {
	return d.db.Memberships.GetByUserAndTenant(userID, tenantID)
}
