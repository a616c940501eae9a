package provider

import (
	"time"

	"github.com/dujiao-next/checkout/internal/authz"
	"github.com/dujiao-next/checkout/internal/broker"
	"github.com/dujiao-next/checkout/internal/cache"
	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/models"
	"github.com/dujiao-next/checkout/internal/payment"
	"github.com/dujiao-next/checkout/internal/queue"
	"github.com/dujiao-next/checkout/internal/repository"
	"github.com/dujiao-next/checkout/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Publisher   broker.Publisher
	Gateways    *payment.Registry

	// Repositories
	CategoryRepo       repository.CategoryRepository
	ProductRepo        repository.ProductRepository
	ProductVariantRepo repository.ProductVariantRepository
	CouponRepo         repository.CouponRepository
	CouponUsageRepo    repository.CouponUsageRepository
	OrderRepo          repository.OrderRepository
	PaymentRepo        repository.PaymentRepository

	// Services
	AuthzService      *authz.Service
	CategoryService   *service.CategoryService
	CouponService     *service.CouponService
	OrderAssembler    *service.OrderAssembler
	OrderMaterializer *service.OrderMaterializer
	PaymentService    *service.PaymentService
	OrderService      *service.OrderService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Publisher:   broker.NewPublisher(cfg.Kafka),
		Gateways:    BuildGatewayRegistry(cfg.Payment),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.CategoryRepo = repository.NewCategoryRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.ProductVariantRepo = repository.NewProductVariantRepository(db)
	c.CouponRepo = repository.NewCouponRepository(db)
	c.CouponUsageRepo = repository.NewCouponUsageRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
	} else {
		if err := authzService.BootstrapBuiltinRoles(); err != nil {
			logger.Warnw("provider_bootstrap_roles_failed", "error", err)
		}
		c.AuthzService = authzService
	}

	c.CategoryService = service.NewCategoryService(c.CategoryRepo)
	c.CouponService = service.NewCouponService(c.CouponRepo, c.CouponUsageRepo, c.CategoryService)
	c.OrderAssembler = service.NewOrderAssembler(c.ProductRepo, c.ProductVariantRepo)
	c.OrderMaterializer = service.NewOrderMaterializer(c.OrderRepo, c.CouponRepo, c.CouponUsageRepo, c.OrderAssembler)

	expireAfter := time.Duration(c.Config.Order.PaymentExpireMinutes) * time.Minute
	c.PaymentService = service.NewPaymentService(
		c.PaymentRepo,
		c.OrderRepo,
		c.Gateways,
		c.OrderMaterializer,
		c.QueueClient,
		expireAfter,
	)
	c.OrderService = service.NewOrderService(service.OrderServiceOptions{
		OrderRepo:       c.OrderRepo,
		CouponRepo:      c.CouponRepo,
		CouponUsageRepo: c.CouponUsageRepo,
		Assembler:       c.OrderAssembler,
		Coupons:         c.CouponService,
		Payments:        c.PaymentService,
		QueueClient:     c.QueueClient,
		Config:          c.Config.Order,
	})
}

// Close 释放容器持有的外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			logger.Warnw("provider_close_publisher_failed", "error", err)
		}
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
