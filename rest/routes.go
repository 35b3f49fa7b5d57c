package rest

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	promclient "github.com/spooky-finn/go-cryptomarkets-view/infrastructure/prometheus"
	"github.com/spooky-finn/go-cryptomarkets-view/usecase"
)

type selectMarketRequest struct {
	Market string `json:"market"`
}

type depthResponse struct {
	Market string              `json:"market"`
	Bids   []domain.DepthLevel `json:"bids"`
	Asks   []domain.DepthLevel `json:"asks"`
}

type candlesResponse struct {
	Market   string          `json:"market"`
	Interval string          `json:"interval"`
	Candles  []domain.Candle `json:"candles"`
}

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(recover.New())

	api := s.App.Group("/api/v1")
	api.Get("/markets", s.marketsHandler)
	api.Put("/market", s.selectMarketHandler)
	api.Get("/orderbook", s.orderBookHandler)
	api.Get("/depth", s.depthHandler)
	api.Get("/candles", s.candlesHandler)
	api.Get("/status", s.statusHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.wsHandler))

	s.App.Get("/metrics", adaptor.HTTPHandler(promclient.Handler(s.registry)))
}

func (s *FiberServer) marketsHandler(c *fiber.Ctx) error {
	resp := fiber.Map{"markets": s.markets}
	if current := s.marketView.Market(); current != nil {
		resp["current"] = current.String()
	}
	return c.JSON(resp)
}

func (s *FiberServer) selectMarketHandler(c *fiber.Ctx) error {
	var req selectMarketRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if !s.isSupportedMarket(req.Market) {
		return fiber.NewError(fiber.StatusBadRequest, "market "+req.Market+" is not supported")
	}

	symbol, err := domain.NewMarketSymbolFromString(req.Market)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := s.marketView.SelectInstrument(c.UserContext(), symbol); err != nil {
		return toFiberError(err)
	}

	status, err := s.marketView.Status()
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(status)
}

func (s *FiberServer) orderBookHandler(c *fiber.Ctx) error {
	limit, err := limitQuery(c)
	if err != nil {
		return err
	}

	book, err := s.marketView.GetOrderBook(limit)
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(book)
}

func (s *FiberServer) depthHandler(c *fiber.Ctx) error {
	limit, err := limitQuery(c)
	if err != nil {
		return err
	}

	bids, asks, err := s.marketView.Depth(limit)
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(&depthResponse{Market: s.marketView.Market().String(), Bids: bids, Asks: asks})
}

func (s *FiberServer) candlesHandler(c *fiber.Ctx) error {
	candles, err := s.marketView.GetCandleWindow()
	if err != nil {
		return toFiberError(err)
	}

	status, err := s.marketView.Status()
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(&candlesResponse{Market: status.Market, Interval: status.Interval, Candles: candles})
}

func (s *FiberServer) statusHandler(c *fiber.Ctx) error {
	status, err := s.marketView.Status()
	if err != nil {
		return toFiberError(err)
	}
	return c.JSON(status)
}

func limitQuery(c *fiber.Ctx) (int, error) {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "limit must not be negative")
	}
	return limit, nil
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrNoInstrument):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
