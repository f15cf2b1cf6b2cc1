package audio

import (
	"context"

	"github.com/rbright/kombo/internal/segment"
)

// Source produces frames in capture order until ctx ends or the input is
// exhausted. Implementations call emit from a single goroutine.
type Source interface {
	Run(ctx context.Context, emit func(segment.Frame)) error
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, emit func(segment.Frame)) error

// Run calls f(ctx, emit).
func (f SourceFunc) Run(ctx context.Context, emit func(segment.Frame)) error {
	return f(ctx, emit)
}
