package recognize

import (
	"context"
	"fmt"

	"github.com/rbright/kombo/internal/config"
)

// New builds the configured recognizer backend.
func New(ctx context.Context, cfg config.RecognizerConfig) (Recognizer, error) {
	switch cfg.Backend {
	case "http":
		return NewHTTP(cfg.Endpoint, cfg.Language, cfg.Timeout())
	case "grpc":
		return DialGRPC(ctx, cfg.Endpoint, cfg.GRPCMethod, cfg.Language, cfg.Timeout())
	default:
		return nil, fmt.Errorf("unknown recognizer backend %q", cfg.Backend)
	}
}
