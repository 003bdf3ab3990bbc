package bdd

import (
	"fmt"

	"github.com/chirino/chatmem-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

// testTokens maps the clients known to the server under test to their bearer tokens.
var testTokens = map[string]string{
	"extension": "extension-token",
	"dashboard": "dashboard-token",
}

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		a := &authSteps{s: s}
		ctx.Step(`^I am authenticated as client "([^"]*)"$`, a.iAmAuthenticatedAsClient)
		ctx.Step(`^I am authenticated with token "([^"]*)"$`, a.iAmAuthenticatedWithToken)
		ctx.Step(`^I am not authenticated$`, a.iAmNotAuthenticated)
	})
}

type authSteps struct {
	s *cucumber.TestScenario
}

func (a *authSteps) setUser(name, token string) {
	a.s.Suite.Mu.Lock()
	defer a.s.Suite.Mu.Unlock()
	user := a.s.Users[name]
	if user == nil {
		user = &cucumber.TestUser{Name: name}
		a.s.Users[name] = user
	}
	user.Token = token
	a.s.CurrentUser = name
}

func (a *authSteps) iAmAuthenticatedAsClient(client string) error {
	token, ok := testTokens[client]
	if !ok {
		return fmt.Errorf("unknown test client %q", client)
	}
	a.setUser(client, token)
	a.s.Session().Header.Del("Authorization")
	return nil
}

func (a *authSteps) iAmAuthenticatedWithToken(token string) error {
	a.setUser("token:"+token, token)
	a.s.Session().Header.Del("Authorization")
	return nil
}

func (a *authSteps) iAmNotAuthenticated() error {
	a.setUser("anonymous", "")
	a.s.Session().Header.Del("Authorization")
	return nil
}
