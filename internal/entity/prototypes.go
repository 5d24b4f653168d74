package entity

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medscribe/clinsearch/internal/embedding"
	"github.com/medscribe/clinsearch/pkg/types"
)

// BuildPrototypes embeds each category's keyword list into a prototype vector
// for the classifier's embedding blend. Categories whose embedding call fails
// are skipped with a warning so one bad call doesn't lose the whole table; an
// error is returned only when no category could be embedded.
func BuildPrototypes(ctx context.Context, provider embedding.Provider, logger *zap.Logger) (map[types.EntityType][]float32, error) {
	if provider == nil {
		return nil, fmt.Errorf("entity: build prototypes: provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	prototypes := make(map[types.EntityType][]float32)
	var lastErr error
	for entityType, keywords := range types.CategoryKeywords() {
		if entityType.IsStructural() || len(keywords) == 0 {
			continue
		}
		vector, err := provider.Embed(ctx, strings.Join(keywords, " "))
		if err != nil {
			lastErr = err
			logger.Warn("prototype embedding failed, category will use keyword scoring only",
				zap.String("entity_type", string(entityType)), zap.Error(err))
			continue
		}
		prototypes[entityType] = vector
	}

	if len(prototypes) == 0 && lastErr != nil {
		return nil, fmt.Errorf("entity: build prototypes: %w", lastErr)
	}
	return prototypes, nil
}
