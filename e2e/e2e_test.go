package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against a server at MEDLEDGER_E2E_URL
// that trusts tokens signed with MEDLEDGER_E2E_SECRET.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("MEDLEDGER_E2E_URL")
	if baseURL == "" {
		t.Skip("MEDLEDGER_E2E_URL not set")
	}
	secret := os.Getenv("MEDLEDGER_E2E_SECRET")
	if secret == "" {
		secret = "dev-secret-key-change-in-production"
	}
	issuer := os.Getenv("MEDLEDGER_E2E_ISSUER")
	if issuer == "" {
		issuer = "medledger-identity"
	}

	tc := NewTestContext(baseURL, secret, issuer)
	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}
