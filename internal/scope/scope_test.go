package scope

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/envsafe/internal/errors"
)

func TestActorConstructors(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	assert.Equal(t, Actor{Kind: ActorUser, ID: id}, UserActor(id))
	assert.Equal(t, Actor{Kind: ActorIdentity, ID: id}, IdentityActor(id))
	assert.Equal(t, Actor{Kind: ActorServiceToken, ID: id}, ServiceTokenActor(id))
	assert.Equal(t, "user:"+id.String(), UserActor(id).String())
}

func TestParseActor(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	t.Run("Success", func(t *testing.T) {
		actor, err := ParseActor("service_token", id)
		require.NoError(t, err)
		assert.Equal(t, ServiceTokenActor(id), actor)
	})

	t.Run("Error_UnknownKind", func(t *testing.T) {
		_, err := ParseActor("robot", id)
		assert.ErrorIs(t, err, ErrInvalidActor)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_NilID", func(t *testing.T) {
		_, err := ParseActor("user", uuid.Nil)
		assert.ErrorIs(t, err, ErrInvalidActor)
	})
}

func TestScopeValidate(t *testing.T) {
	actor := UserActor(uuid.Must(uuid.NewV7()))
	projectID := uuid.Must(uuid.NewV7())
	environmentID := uuid.Must(uuid.NewV7())

	assert.NoError(t, New(actor, projectID, environmentID).Validate())
	assert.ErrorIs(t, New(actor, uuid.Nil, environmentID).Validate(), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, New(actor, projectID, uuid.Nil).Validate(), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, New(Actor{}, projectID, environmentID).Validate(), ErrInvalidActor)
}
