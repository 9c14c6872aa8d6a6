package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Billy-Davies-2/frc-line-service/internal/dal"
	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/market"
	"github.com/Billy-Davies-2/frc-line-service/internal/models"
	"github.com/Billy-Davies-2/frc-line-service/internal/pubsub"
)

// Server implements LineService on top of the market service
type Server struct {
	svc    *market.Service
	pubsub *pubsub.PubSub
}

// NewServer creates a new gRPC server
func NewServer(svc *market.Service, ps *pubsub.PubSub) *Server {
	return &Server{
		svc:    svc,
		pubsub: ps,
	}
}

// Predict values two alliances and returns the match line
func (s *Server) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req market.PredictRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	prediction, err := s.svc.Predict(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(prediction)
}

// Simulate predicts a batch of synthetic matches
func (s *Server) Simulate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req market.SimulateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	predictions, err := s.svc.Simulate(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{
		"summary":     market.Summarize(predictions),
		"predictions": predictions,
	})
}

// PlaceBet records a bet against the match line
func (s *Server) PlaceBet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req market.PlaceBetRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	bet, err := s.svc.PlaceBet(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	logger.Debug("gRPC: Bet placed", "id", bet.ID)
	return toStruct(bet)
}

// GetBet returns a bet by {"id"}
func (s *Server) GetBet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	bet, err := s.svc.GetBet(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(bet)
}

// ListBets returns {"bets": [...]} for a filter
func (s *Server) ListBets(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var filter models.BetFilter
	if err := fromStruct(in, &filter); err != nil {
		return nil, err
	}

	bets, err := s.svc.ListBets(ctx, filter)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"bets": bets})
}

// GetLine returns the current prediction for {"matchId"}
func (s *Server) GetLine(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		MatchID string `json:"matchId"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	prediction, err := s.svc.GetLine(ctx, req.MatchID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(prediction)
}

// LineHistory returns {"snapshots": [...]} for {"matchId", "limit"}
func (s *Server) LineHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		MatchID string `json:"matchId"`
		Limit   int    `json:"limit"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	history, err := s.svc.LineHistory(ctx, req.MatchID, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"snapshots": history})
}

// StreamEvents streams market events to clients
func (s *Server) StreamEvents(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	logger.Debug("gRPC: New client connected to event stream")
	eventChan := s.pubsub.Subscribe()
	defer s.pubsub.Unsubscribe(eventChan)

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return nil
			}
			msg, err := toStruct(event)
			if err != nil {
				logger.Warn("gRPC: Dropping unencodable event", "type", event.Type, "error", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				logger.Error("gRPC: Failed to send event to stream", "error", err)
				return err
			}
		case <-stream.Context().Done():
			logger.Debug("gRPC: Client disconnected from event stream")
			return nil
		}
	}
}

// fromStruct decodes a Struct into v through its JSON form
func fromStruct(in *structpb.Struct, v interface{}) error {
	if in == nil {
		in = &structpb.Struct{}
	}

	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// toStruct encodes v as a Struct through its JSON form
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// toStatus maps service errors to gRPC status codes
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, market.ErrInvalidRequest), errors.Is(err, market.ErrInvalidBet):
		code = codes.InvalidArgument
	case errors.Is(err, market.ErrUnknownMatch), errors.Is(err, dal.ErrBetNotFound):
		code = codes.NotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		logger.Error("gRPC: Request failed", "error", err)
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

var _ LineServiceServer = (*Server)(nil)
