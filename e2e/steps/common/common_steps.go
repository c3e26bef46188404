package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	SetParticipant(name, address string)
	Do(ctx context.Context, as, method, path string, body any) error
	Status() int
	Field(name string) (string, error)
	Save(field, alias string) error
}

// RegisterSteps registers participant setup and response assertions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^participant "([^"]*)" has wallet "([^"]*)"$`, steps.participantHasWallet)
	ctx.Step(`^the service is healthy$`, steps.serviceIsHealthy)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldShouldBe)
	ctx.Step(`^I save the response field "([^"]*)" as "([^"]*)"$`, steps.saveResponseField)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) participantHasWallet(ctx context.Context, name, address string) error {
	s.tc.SetParticipant(name, address)
	return nil
}

func (s *commonSteps) serviceIsHealthy(ctx context.Context) error {
	if err := s.tc.Do(ctx, "", "GET", "/healthz", nil); err != nil {
		return err
	}
	return s.responseFieldShouldBe(ctx, "status", "ok")
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, status int) error {
	if got := s.tc.Status(); got != status {
		return fmt.Errorf("expected status %d, got %d", status, got)
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBe(ctx context.Context, field, want string) error {
	got, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) saveResponseField(ctx context.Context, field, alias string) error {
	return s.tc.Save(field, alias)
}
