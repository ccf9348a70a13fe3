package bpmn

import (
	"context"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// ClaimChecker decides whether an identity may execute flow nodes of a lane.
type ClaimChecker interface {
	EnsureHasClaim(ctx context.Context, identity runtime.Identity, claim string) error
}

type AllowAllClaimChecker struct{}

func (AllowAllClaimChecker) EnsureHasClaim(context.Context, runtime.Identity, string) error {
	return nil
}

// IdentityClaimChecker requires the lane name among the identity claims.
type IdentityClaimChecker struct{}

func (IdentityClaimChecker) EnsureHasClaim(_ context.Context, identity runtime.Identity, claim string) error {
	if identity.HasClaim(claim) {
		return nil
	}
	return newValidationErrorf("identity %s is missing claim %s", identity.UserId, claim)
}
