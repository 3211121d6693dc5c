// Package scope defines the already-authorized caller context every core
// operation receives: who is acting and on which project environment.
package scope

import (
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/allisson/envsafe/internal/errors"
)

// ActorKind identifies which kind of principal performed an operation.
type ActorKind string

// Actor kinds.
const (
	ActorUser         ActorKind = "user"
	ActorIdentity     ActorKind = "identity"
	ActorServiceToken ActorKind = "service_token"
)

// ErrInvalidActor indicates an actor with an unknown kind or a nil id.
var ErrInvalidActor = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid actor")

// Actor is a tagged union of the principals that can be attributed to a version.
// Construct it with UserActor, IdentityActor or ServiceTokenActor.
type Actor struct {
	Kind ActorKind
	ID   uuid.UUID
}

// UserActor returns an actor for a human user.
func UserActor(id uuid.UUID) Actor {
	return Actor{Kind: ActorUser, ID: id}
}

// IdentityActor returns an actor for a machine identity.
func IdentityActor(id uuid.UUID) Actor {
	return Actor{Kind: ActorIdentity, ID: id}
}

// ServiceTokenActor returns an actor for an API/service token credential.
func ServiceTokenActor(id uuid.UUID) Actor {
	return Actor{Kind: ActorServiceToken, ID: id}
}

// ParseActor builds an actor from its persisted kind and id.
func ParseActor(kind string, id uuid.UUID) (Actor, error) {
	actor := Actor{Kind: ActorKind(kind), ID: id}
	if err := actor.Validate(); err != nil {
		return Actor{}, err
	}
	return actor, nil
}

// Validate checks that the actor kind is known and the id is set.
func (a Actor) Validate() error {
	switch a.Kind {
	case ActorUser, ActorIdentity, ActorServiceToken:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidActor, a.Kind)
	}
	if a.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidActor)
	}
	return nil
}

// String returns "kind:id".
func (a Actor) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

// Scope is the resolved (actor, project, environment) triple passed to the core.
// Authorization happens before the core sees it; the core trusts it as given.
type Scope struct {
	Actor         Actor
	ProjectID     uuid.UUID
	EnvironmentID uuid.UUID
}

// New creates a Scope.
func New(actor Actor, projectID, environmentID uuid.UUID) Scope {
	return Scope{Actor: actor, ProjectID: projectID, EnvironmentID: environmentID}
}

// Validate checks the actor and that both ids are set.
func (s Scope) Validate() error {
	if err := s.Actor.Validate(); err != nil {
		return err
	}
	if s.ProjectID == uuid.Nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "missing project id")
	}
	if s.EnvironmentID == uuid.Nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "missing environment id")
	}
	return nil
}
