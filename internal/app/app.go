package app

import (
	"vendor_audit_backend/internal/config"
	"vendor_audit_backend/internal/connectivity"
	"vendor_audit_backend/internal/controller"
	"vendor_audit_backend/internal/docstore"
	"vendor_audit_backend/internal/offline"
	"vendor_audit_backend/internal/repository"
	"vendor_audit_backend/internal/service"
	"vendor_audit_backend/pkg/circuitbreaker"
	"vendor_audit_backend/pkg/database"
	"vendor_audit_backend/pkg/logger"
	"vendor_audit_backend/pkg/monitoring"
	"vendor_audit_backend/pkg/security"
	"vendor_audit_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	engine          *engine
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

// engine 持久化引擎的长生命周期组件
type engine struct {
	store   docstore.Store
	breaker *circuitbreaker.Breaker
	queue   *offline.Queue
	monitor *connectivity.Monitor
}

type repositories struct {
	user       *repository.UserRepository
	assessment *repository.AssessmentRepository
	form       *repository.FormRepository
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	assessment *service.AssessmentService
	attachment *service.AttachmentService
	form       *service.FormService
}

type controllers struct {
	auth       *controller.AuthController
	assessment *controller.AssessmentController
	attachment *controller.AttachmentController
	form       *controller.FormController
	sync       *controller.SyncController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置文件热更新入口，通知所有已注册的回调
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
	logger.Log.Info("configuration reloaded")
}

// initEngine 存储、熔断器、离线队列和连通性探测的装配。
// 熔断器状态和队列深度通过回调接到 prometheus。
func (a *App) initEngine(cfg *config.Config, db *gorm.DB) *engine {
	store := docstore.NewGormStore(db)

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             "docstore",
		FailureThreshold: cfg.Engine.BreakerThreshold,
		ResetTimeout:     cfg.Engine.BreakerResetTimeout(),
		MonitorWindow:    cfg.Engine.BreakerWindow(),
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			monitoring.BreakerState.WithLabelValues(name).Set(float64(to))
			if to == circuitbreaker.StateOpen {
				monitoring.BreakerTrips.WithLabelValues(name).Inc()
			}
		},
	})

	monitor := connectivity.NewMonitor(store, cfg.Engine.ProbeInterval(), cfg.Engine.ProbeTimeout(), logger.Log)
	return &engine{store: store, breaker: breaker, monitor: monitor}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, eng *engine) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		assessment: repository.NewAssessmentRepository(eng.store, eng.breaker, logger.Log),
		form:       repository.NewFormRepository(eng.store, rdb, logger.Log),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, eng *engine) *services {
	s := &services{}

	// 队列回放直接走评估仓库，重试语义和在线写入一致
	eng.queue = offline.NewQueue(offline.Config{
		MaxRetries:    cfg.Engine.QueueMaxRetries,
		BackoffBase:   cfg.Engine.QueueBackoffBase(),
		MaxQueueSize:  cfg.Engine.QueueMaxSize,
		MaxErrors:     cfg.Engine.QueueMaxErrors,
		DrainInterval: cfg.Engine.QueueDrainInterval(),
		OnDepthChange: func(depth int) {
			monitoring.OfflineQueueDepth.Set(float64(depth))
		},
		OnSyncError: func() {
			monitoring.SyncErrorsTotal.Inc()
		},
	}, repos.assessment, logger.Log)

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.form = service.NewFormService(repos.form)
	s.assessment = service.NewAssessmentService(repos.assessment, repos.form, eng.queue, eng.monitor, cfg, logger.Log)
	s.attachment = service.NewAttachmentService(s.storage, s.assessment, logger.Log)

	return s
}

func (a *App) initControllers(s *services, eng *engine) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		assessment: controller.NewAssessmentController(s.assessment),
		attachment: controller.NewAttachmentController(s.attachment),
		form:       controller.NewFormController(s.form),
		sync:       controller.NewSyncController(s.assessment),
		health:     controller.NewHealthController(eng.store, eng.monitor),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	maxReq := cfg.RateLimit.MaxRequests
	if maxReq <= 0 {
		maxReq = 100000
	}
	router.Use(security.RateLimiter(maxReq, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	// 监控初始化
	monitoring.Init()
	monitoring.InitEngineMetrics()

	eng := app.initEngine(cfg, db)
	app.engine = eng

	repos := app.initRepositories(db, rdb, eng)
	services := app.initServices(repos, cfg, eng)
	app.services = services
	controllers := app.initControllers(services, eng)

	// 连通性探测和队列回放先于请求处理启动
	eng.monitor.Start()
	eng.queue.Start(eng.monitor.Subscribe())

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("vendor-audit-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		// 进程退出时才关导出器，关闭动作放在 Run 的优雅停机里
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
		router.Static("/api/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先把未落盘的编辑写出，再停队列和探测
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.services != nil && a.services.assessment != nil {
		a.services.assessment.Shutdown(ctx)
	}
	if a.engine != nil {
		a.engine.queue.Stop()
		a.engine.monitor.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
