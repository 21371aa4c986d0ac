package scanner

import (
    "context"
    "fmt"

    "github.com/google/uuid"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
)

type Service struct {
    products ports.ProductRepository
    runs     ports.ScanRunRepository
}

func New(products ports.ProductRepository, runs ports.ScanRunRepository) *Service {
    return &Service{products: products, runs: runs}
}

// Enqueue records a queued run for the product, with its job, and returns the
// run id. Unknown products are rejected up front.
func (s *Service) Enqueue(ctx context.Context, productID string) (string, error) {
    if _, err := s.products.GetProduct(ctx, productID); err != nil {
        return "", fmt.Errorf("product %s: %w", productID, err)
    }
    runID := uuid.NewString()
    if err := s.runs.CreateRun(ctx, runID, productID); err != nil {
        return "", err
    }
    return runID, nil
}

func (s *Service) Status(ctx context.Context, runID string) (domain.ScanRun, error) {
    return s.runs.GetRun(ctx, runID)
}

var _ ports.Scanner = (*Service)(nil)
