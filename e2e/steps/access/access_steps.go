package access

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Participant(name string) (string, error)
	Do(ctx context.Context, as, method, path string, body any) error
	Saved(alias string) (uint64, error)
	Status() int
	Field(name string) (string, error)
}

// RegisterSteps registers record and access-request step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &accessSteps{tc: tc}

	ctx.Step(`^"([^"]*)" creates a record for artifact "([^"]*)"$`, steps.createRecord)
	ctx.Step(`^"([^"]*)" requests access to record "([^"]*)"$`, steps.requestAccess)
	ctx.Step(`^"([^"]*)" approves request "([^"]*)"$`, steps.approve)
	ctx.Step(`^"([^"]*)" denies request "([^"]*)"$`, steps.deny)
	ctx.Step(`^"([^"]*)" revokes request "([^"]*)"$`, steps.revoke)
	ctx.Step(`^"([^"]*)" should be allowed to access record "([^"]*)"$`, steps.shouldBeAllowed)
	ctx.Step(`^"([^"]*)" should not be allowed to access record "([^"]*)"$`, steps.shouldNotBeAllowed)
	ctx.Step(`^the ledger should verify$`, steps.ledgerShouldVerify)
}

type accessSteps struct {
	tc TestContext
}

func (s *accessSteps) createRecord(ctx context.Context, who, artifact string) error {
	return s.tc.Do(ctx, who, "POST", "/records", map[string]any{
		"artifact_reference": artifact,
	})
}

func (s *accessSteps) requestAccess(ctx context.Context, who, record string) error {
	recordID, err := s.tc.Saved(record)
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, who, "POST", fmt.Sprintf("/records/%d/access-requests", recordID), nil)
}

func (s *accessSteps) decide(ctx context.Context, who, request string, approve bool) error {
	requestID, err := s.tc.Saved(request)
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, who, "POST", fmt.Sprintf("/access-requests/%d/decision", requestID), map[string]any{
		"approve": approve,
	})
}

func (s *accessSteps) approve(ctx context.Context, who, request string) error {
	return s.decide(ctx, who, request, true)
}

func (s *accessSteps) deny(ctx context.Context, who, request string) error {
	return s.decide(ctx, who, request, false)
}

func (s *accessSteps) revoke(ctx context.Context, who, request string) error {
	requestID, err := s.tc.Saved(request)
	if err != nil {
		return err
	}
	return s.tc.Do(ctx, who, "POST", fmt.Sprintf("/access-requests/%d/revoke", requestID), nil)
}

func (s *accessSteps) checkAccess(ctx context.Context, who, record string) (string, error) {
	recordID, err := s.tc.Saved(record)
	if err != nil {
		return "", err
	}
	if err := s.tc.Do(ctx, who, "GET", fmt.Sprintf("/records/%d/access", recordID), nil); err != nil {
		return "", err
	}
	if s.tc.Status() != 200 {
		return "", fmt.Errorf("access check returned status %d", s.tc.Status())
	}
	return s.tc.Field("allowed")
}

func (s *accessSteps) shouldBeAllowed(ctx context.Context, who, record string) error {
	allowed, err := s.checkAccess(ctx, who, record)
	if err != nil {
		return err
	}
	if allowed != "true" {
		return fmt.Errorf("expected %s to be allowed on %s", who, record)
	}
	return nil
}

func (s *accessSteps) shouldNotBeAllowed(ctx context.Context, who, record string) error {
	allowed, err := s.checkAccess(ctx, who, record)
	if err != nil {
		return err
	}
	if allowed != "false" {
		return fmt.Errorf("expected %s to be denied on %s", who, record)
	}
	return nil
}

func (s *accessSteps) ledgerShouldVerify(ctx context.Context) error {
	if err := s.tc.Do(ctx, "patient", "GET", "/ledger/verify", nil); err != nil {
		return err
	}
	valid, err := s.tc.Field("valid")
	if err != nil {
		return err
	}
	if valid != "true" {
		return fmt.Errorf("ledger chain reported invalid")
	}
	return nil
}
