package auth_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/dicehouse/craps-engine/internal/auth"
)

func TestAllowRequiresGrant(t *testing.T) {
	a := auth.NewAuthorizer()
	a.Grant("ops-1", auth.OpStartSeries, auth.OpRequestRoll)

	if err := a.Allow("ops-1", auth.OpStartSeries); err != nil {
		t.Errorf("granted operation should be allowed: %v", err)
	}
	if err := a.Allow("ops-1", auth.OpFinalizeWeek); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("ungranted operation should be rejected, got %v", err)
	}
	if err := a.Allow("stranger", auth.OpStartSeries); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("unknown principal should be rejected, got %v", err)
	}
	if err := a.Allow("", auth.OpStartSeries); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("empty principal should be rejected, got %v", err)
	}
}

func TestOperatorOpsCoverEverything(t *testing.T) {
	a := auth.NewAuthorizer()
	a.Grant("ops-1", auth.OperatorOps...)

	for _, op := range auth.OperatorOps {
		if err := a.Allow("ops-1", op); err != nil {
			t.Errorf("operator should hold %s: %v", op, err)
		}
	}
}

func TestPrincipalExtraction(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	if got := auth.Principal(r); got != "" {
		t.Errorf("no headers should yield empty principal, got %q", got)
	}

	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer secret-token")
	if got := auth.Principal(r); got != "secret-token" {
		t.Errorf("bearer token not extracted, got %q", got)
	}

	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("X-Operator-Key", "ops-key")
	if got := auth.Principal(r); got != "ops-key" {
		t.Errorf("operator key not extracted, got %q", got)
	}

	// Bearer wins when both are present.
	r = httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Bearer first")
	r.Header.Set("X-Operator-Key", "second")
	if got := auth.Principal(r); got != "first" {
		t.Errorf("bearer token should take precedence, got %q", got)
	}
}

func TestAuthorizeEndToEnd(t *testing.T) {
	a := auth.NewAuthorizer()
	a.Grant("ops-1", auth.OpAdvanceWeek)

	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("X-Operator-Key", "ops-1")
	if err := a.Authorize(r, auth.OpAdvanceWeek); err != nil {
		t.Errorf("authorized request rejected: %v", err)
	}
	if err := a.Authorize(r, auth.OpReplenishBot); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("unauthorized operation allowed, got %v", err)
	}
}
