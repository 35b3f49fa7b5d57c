package rpc

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	"github.com/spooky-finn/go-cryptomarkets-view/helpers"
	"github.com/spooky-finn/go-cryptomarkets-view/usecase"
)

type candlesResponse struct {
	Market   string          `json:"market"`
	Interval string          `json:"interval"`
	Candles  []domain.Candle `json:"candles"`
}

func (s *server) GetOrderBook(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.activeMarket(in); err != nil {
		return nil, err
	}

	snapshot, err := s.marketView.GetOrderBook(int(in.Fields["max_depth"].GetNumberValue()))
	if err != nil {
		return nil, toStatusError(err)
	}

	return encode(snapshot)
}

func (s *server) GetCandles(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	market, err := s.activeMarket(in)
	if err != nil {
		return nil, err
	}

	candles, err := s.marketView.GetCandleWindow()
	if err != nil {
		return nil, toStatusError(err)
	}

	st, err := s.marketView.Status()
	if err != nil {
		return nil, toStatusError(err)
	}

	return encode(&candlesResponse{Market: market.String(), Interval: st.Interval, Candles: candles})
}

func (s *server) GetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.marketView.Status()
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(st)
}

func (s *server) SelectMarket(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := s.validationService.ParseMarket(in.Fields["market"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.marketView.SelectInstrument(ctx, symbol); err != nil {
		return nil, toStatusError(err)
	}

	st, err := s.marketView.Status()
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(st)
}

// Watch streams market view events until the client goes away. An empty "types" list
// means every event type. A slow client loses events rather than stalling the engines.
func (s *server) Watch(in *structpb.Struct, stream MarketDataService_WatchServer) error {
	wanted := make(map[usecase.EventType]bool)
	for _, v := range in.Fields["types"].GetListValue().GetValues() {
		wanted[usecase.EventType(v.GetStringValue())] = true
	}

	events := make(chan usecase.Event, watchBuffer)
	unsubscribe := s.marketView.Subscribe(func(ev usecase.Event) {
		if len(wanted) > 0 && !wanted[ev.Type] {
			return
		}
		select {
		case events <- ev:
		default:
			s.logger.Warn("watch client is lagging, event dropped", zap.String("type", string(ev.Type)))
		}
	})
	defer unsubscribe()

	// the current status goes first so the client knows the subscription is live
	if st, err := s.marketView.Status(); err == nil && (len(wanted) == 0 || wanted[usecase.EventStatusChanged]) {
		msg, err := encode(usecase.Event{Type: usecase.EventStatusChanged, Market: st.Market, Status: st})
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			msg, err := encode(ev)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// activeMarket validates the requested market and requires it to be the selected one.
func (s *server) activeMarket(in *structpb.Struct) (*domain.MarketSymbol, error) {
	symbol, err := s.validationService.ParseMarket(in.Fields["market"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	current := s.marketView.Market()
	if current == nil {
		return nil, toStatusError(usecase.ErrNoInstrument)
	}
	if !current.Equal(symbol) {
		return nil, status.Errorf(codes.FailedPrecondition, "market %s is not selected, current market is %s", symbol, current)
	}
	return symbol, nil
}

func encode(v interface{}) (*structpb.Struct, error) {
	out, err := helpers.ToStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func toStatusError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrNoInstrument):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, usecase.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
