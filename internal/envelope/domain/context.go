package domain

import "context"

type entityKey struct{}

// WithEntity records the table or entity a value belongs to. The audit decorator reads
// it; encryption itself ignores it.
func WithEntity(ctx context.Context, entity string) context.Context {
	return context.WithValue(ctx, entityKey{}, entity)
}

// EntityFromContext returns the entity recorded by WithEntity, or "" when unset.
func EntityFromContext(ctx context.Context) string {
	entity, _ := ctx.Value(entityKey{}).(string)
	return entity
}
