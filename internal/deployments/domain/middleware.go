package domain

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.Record(ctx, req)
	m.logger.Info("Record",
		"network", req.Network,
		"contract", req.ContractName,
		"outcome", req.Outcome,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) Get(ctx context.Context, chainID, address string) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.Get(ctx, chainID, address)
	m.logger.Debug("Get",
		"chain_id", chainID,
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) GetByID(ctx context.Context, id string) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.GetByID(ctx, id)
	m.logger.Debug("GetByID",
		"id", id,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	res, err := m.next.List(ctx, filter, pagination)
	m.logger.Debug("List",
		"network", filter.Network,
		"contract", filter.Contract,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return res, err
}

func (m *loggingMiddleware) UpdateVerification(ctx context.Context, id string, result VerificationResult) error {
	start := time.Now()
	err := m.next.UpdateVerification(ctx, id, result)
	m.logger.Info("UpdateVerification",
		"id", id,
		"status", result.Status,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}
