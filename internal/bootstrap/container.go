// Package bootstrap wires every component into a running Container,
// generalizing the reference implementation's internal/app AppModule/
// Application pair (fx.Options composing config, infrastructure, and
// business modules, then one fx.Invoke to start it) into the core's own
// dependency graph. Where the reference implementation's bootstrap also
// ran schema migrations, extension setup, and data seeding, those are
// carried by a separate operational process and are out of scope here.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"hl7-interop-bridge/internal/config"
	"hl7-interop-bridge/internal/identifier"
	"hl7-interop-bridge/internal/inbound"
	"hl7-interop-bridge/internal/logging"
	"hl7-interop-bridge/internal/messagelog"
	"hl7-interop-bridge/internal/outbound"
	"hl7-interop-bridge/internal/repository"
	"hl7-interop-bridge/internal/scenario"
	"hl7-interop-bridge/internal/storage/postgres"
	"hl7-interop-bridge/internal/storage/redis"
	"hl7-interop-bridge/internal/structure"
	"hl7-interop-bridge/internal/transport"
	"hl7-interop-bridge/internal/vocabulary"
)

// Container exposes every collaborator cmd/corectl needs, populated by
// an fx.App built with fx.Populate. It plays the role the reference
// implementation's *app.Application plays for its HTTP server, adapted to
// a CLI that runs one command and exits rather than serving forever.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Pipeline     *inbound.Pipeline
	Transport    *transport.Manager
	Endpoints    *repository.EndpointRepository
	Templates    *repository.ScenarioTemplateRepository
	Capturer     *scenario.Capturer
	Materializer *scenario.Materializer
	Replayer     *scenario.Replayer
	Statistician *scenario.Statistician
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.Level)
}

// idGenerator is provided once for every collaborator that wants a fresh
// string identifier source; every caller uses the same uuid.NewString.
func idGenerator() func() string {
	return uuid.NewString
}

func newPipeline(
	cfg *config.Config,
	structures *structure.Resolver,
	identifiers *identifier.Service,
	registry *vocabulary.Registry,
	log *messagelog.Logger,
	patients *repository.PatientRepository,
	dossiers *repository.DossierRepository,
	venues *repository.VenueRepository,
	movements *repository.MovementRepository,
	namespaces *repository.NamespaceRepository,
	txManager *postgres.TransactionManager,
) *inbound.Pipeline {
	return inbound.New(inbound.Pipeline{
		Structure:        structures,
		Identifiers:      identifiers,
		Vocabulary:       registry,
		Log:              log,
		Patients:         patients,
		Dossiers:         dossiers,
		Venues:           venues,
		Movements:        movements,
		Namespaces:       namespaces,
		Tx:               txManager,
		IDGenerator:      uuid.NewString,
		StrictPAMFR:      cfg.PAM.StrictPAMFR,
		RelaxTransitions: cfg.PAM.RelaxTransitions,
		SendingApp:       cfg.Identity.SendingApplication,
		SendingFacility:  cfg.Identity.SendingFacility,
	})
}

func newStructureResolver(cfg *config.Config, repo *repository.StructureRepository, idGen func() string) *structure.Resolver {
	return structure.New(repo, cfg.PAM.AutoCreateUF, idGen)
}

func newIdentifierService(repo *repository.NamespaceRepository, redisClient *redis.Client) *identifier.Service {
	return identifier.New(repo, redisClient)
}

func newMessageLogger(repo *repository.MessageLogRepository, idGen func() string) *messagelog.Logger {
	return messagelog.New(repo, idGen)
}

func newTransportManager(cfg *config.Config, pipeline *inbound.Pipeline, logger *zap.Logger) *transport.Manager {
	return transport.NewManager(pipeline.Process, cfg.MLLP.MaxFrameBytes, cfg.MLLP.ReadTimeout, cfg.MLLP.SenderIdleTimeout, logger)
}

func newMaterializer(cfg *config.Config, namespaces *repository.NamespaceRepository, identifiers *identifier.Service) *scenario.Materializer {
	sender := outbound.JuridicalEntity{Code: cfg.Identity.SendingApplication, FINESS: cfg.Identity.SendingFacility}
	return scenario.NewMaterializer(namespaces, identifiers, uuid.NewString, sender, cfg.Identity.AssigningAuthority)
}

func newCapturer(movements *repository.MovementRepository, templates *repository.ScenarioTemplateRepository, registry *vocabulary.Registry) *scenario.Capturer {
	return scenario.NewCapturer(movements, templates, registry, uuid.NewString, time.Now)
}

func newReplayer(mgr *transport.Manager, runs *repository.ScenarioRunRepository) *scenario.Replayer {
	return scenario.NewReplayer(mgr, runs, time.Sleep, time.Now)
}

func newStatistician(runs *repository.ScenarioRunRepository) *scenario.Statistician {
	return scenario.NewStatistician(runs)
}

// Module aggregates every provider into one fx.Options value, mirroring
// the reference implementation's AppModule composition order: config and
// infrastructure first, then repositories, then domain services, then the
// pipeline and scenario engine that depend on them.
var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(newZapLogger),
	fx.Provide(idGenerator),
	fx.Provide((*config.Config).PostgresConfig),
	fx.Provide((*config.Config).RedisClientConfig),

	postgres.Module,
	redis.Module,

	fx.Provide(repository.NewPatientRepository),
	fx.Provide(repository.NewDossierRepository),
	fx.Provide(repository.NewVenueRepository),
	fx.Provide(repository.NewMovementRepository),
	fx.Provide(repository.NewNamespaceRepository),
	fx.Provide(repository.NewStructureRepository),
	fx.Provide(repository.NewMessageLogRepository),
	fx.Provide(repository.NewEndpointRepository),
	fx.Provide(repository.NewScenarioTemplateRepository),
	fx.Provide(repository.NewScenarioRunRepository),

	fx.Provide(vocabulary.New),
	fx.Provide(newIdentifierService),
	fx.Provide(newStructureResolver),
	fx.Provide(newMessageLogger),
	fx.Provide(newPipeline),
	fx.Provide(newTransportManager),
	fx.Provide(newMaterializer),
	fx.Provide(newCapturer),
	fx.Provide(newReplayer),
	fx.Provide(newStatistician),

	transport.Module,

	fx.Provide(func(
		cfg *config.Config, logger *zap.Logger, pipeline *inbound.Pipeline, mgr *transport.Manager,
		endpoints *repository.EndpointRepository, templates *repository.ScenarioTemplateRepository,
		capturer *scenario.Capturer, materializer *scenario.Materializer, replayer *scenario.Replayer,
		statistician *scenario.Statistician,
	) *Container {
		return &Container{
			Config: cfg, Logger: logger, Pipeline: pipeline, Transport: mgr,
			Endpoints: endpoints, Templates: templates, Capturer: capturer,
			Materializer: materializer, Replayer: replayer, Statistician: statistician,
		}
	}),
)

// Start builds the dependency graph and runs every registered OnStart
// hook (postgres/redis connectivity checks, transport module no-ops; no
// endpoint is bound automatically — cmd/corectl's ingest feeds the pipeline
// directly and replay sends through the transport manager). The returned stop func must be called
// before the process exits to run OnStop hooks and release connections.
func Start(ctx context.Context) (*Container, func(context.Context) error, error) {
	var container *Container
	app := fx.New(Module, fx.NopLogger, fx.Populate(&container))
	if err := app.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("bootstrap: starting container: %w", err)
	}
	return container, app.Stop, nil
}
