package auth

import (
	"context"

	"github.com/google/uuid"
)

type collaboratorIDKey struct{}

func ContextWithCollaboratorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, collaboratorIDKey{}, id)
}

func CollaboratorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(collaboratorIDKey{}).(uuid.UUID)
	return id, ok
}
