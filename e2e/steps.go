package e2e

import (
	"github.com/cucumber/godog"

	"medledger/e2e/steps/access"
	"medledger/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Participants, generic assertions
	common.RegisterSteps(ctx, tc)

	// Records, access requests and the gate
	access.RegisterSteps(ctx, tc)
}
