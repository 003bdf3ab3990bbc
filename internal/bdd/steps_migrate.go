package bdd

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/chatmem-service/internal/cmd/migrate"
	"github.com/chirino/chatmem-service/internal/config"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	"github.com/chirino/chatmem-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		m := &migrateSteps{s: s}
		ctx.Step(`^I rebuild the conversations table$`, func() error { return m.run(migrate.ModeRebuild) })
		ctx.Step(`^I recreate the database$`, func() error { return m.run(migrate.ModeRecreate) })
		ctx.Step(`^the table maintenance should succeed$`, m.theTableMaintenanceShouldSucceed)
		ctx.Step(`^the table maintenance should be refused$`, m.theTableMaintenanceShouldBeRefused)
	})
}

type migrateSteps struct {
	s       *cucumber.TestScenario
	lastErr error
}

func (m *migrateSteps) run(mode migrate.Mode) error {
	cfg, ok := m.s.Suite.Context.(*config.Config)
	if !ok {
		return fmt.Errorf("suite context is %T, expected *config.Config", m.s.Suite.Context)
	}
	// Run with a copy so the server's config is left untouched.
	local := *cfg
	m.lastErr = migrate.Run(config.WithContext(context.Background(), &local), mode)
	return nil
}

func (m *migrateSteps) theTableMaintenanceShouldSucceed() error {
	return m.lastErr
}

func (m *migrateSteps) theTableMaintenanceShouldBeRefused() error {
	var precondition *registrymigrate.PreconditionError
	if !errors.As(m.lastErr, &precondition) {
		return fmt.Errorf("expected a precondition error, got %v", m.lastErr)
	}
	return nil
}
