package translate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
)

// New selects a Translator implementation by provider name.
func New(ctx context.Context, cfg config.Translate, logger *zap.Logger) (Translator, error) {
	switch cfg.Provider {
	case "claude":
		return NewClaude(cfg, logger)
	case "gemini":
		return NewGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.Provider)
	}
}
