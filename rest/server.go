package rest

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-cryptomarkets-view/usecase"
)

const appName = "go-cryptomarkets-view"

type FiberServer struct {
	*fiber.App

	marketView *usecase.MarketViewUseCase
	markets    []string
	registry   *prometheus.Registry
	logger     *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func New(marketView *usecase.MarketViewUseCase, markets []string, registry *prometheus.Registry, logger *zap.Logger) *FiberServer {
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          appName,
			AppName:               appName,
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),

		marketView: marketView,
		markets:    markets,
		registry:   registry,
		logger:     logger,
		closing:    make(chan struct{}),
	}

	return server
}

// Close ends open websocket sessions and shuts the http server down.
func (s *FiberServer) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.App.Shutdown()
}

func (s *FiberServer) isSupportedMarket(market string) bool {
	for _, m := range s.markets {
		if m == market {
			return true
		}
	}
	return false
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
