// Package cucumber drives godog features against a running chatmem server.
//
// A scenario keeps one HTTP session per client name, so switching clients
// also switches which response the assertions look at. Step text may refer
// to scenario variables as ${name} or ${name | json}.
package cucumber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

// StepModules register step definitions on every new scenario. Packages
// holding steps append to it from init.
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

// TestDB gives steps direct access to the database behind the server under
// test.
type TestDB interface {
	// ClearAll deletes every conversation. It runs before each scenario.
	ClearAll(ctx context.Context) error
	// ExecSQL runs a raw query and returns each row as a column map.
	ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error)
	// Kind is "sqlite" or "postgres".
	Kind() string
}

// TestSuite is shared by all scenarios of one godog run.
type TestSuite struct {
	APIURL   string
	Context  interface{}
	DB       TestDB
	Mu       sync.Mutex
	TestingT *testing.T
}

func NewTestSuite() *TestSuite {
	return &TestSuite{APIURL: "http://localhost:8000"}
}

func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 1,
	}
}

// ApplyReportOptions switches opts to junit output written under
// GODOG_REPORT_DIR, one file per test name. The returned func closes the
// report file.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	dir := os.Getenv("GODOG_REPORT_DIR")
	if dir == "" {
		return func() {}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return func() {}
	}
	f, err := os.Create(filepath.Join(dir, strings.ReplaceAll(testName, "/", "-")+".xml"))
	if err != nil {
		return func() {}
	}
	opts.Output = f
	opts.Format = "junit"
	return func() { _ = f.Close() }
}

// TestUser is an API client identified by its bearer token.
type TestUser struct {
	Name  string
	Token string
}

// TestScenario is the state of one running scenario.
type TestScenario struct {
	Suite       *TestSuite
	CurrentUser string
	Users       map[string]*TestUser
	Variables   map[string]interface{}
	sessions    map[string]*TestSession
}

// Session returns the HTTP session of the current client, creating it on
// first use.
func (s *TestScenario) Session() *TestSession {
	if session, ok := s.sessions[s.CurrentUser]; ok {
		return session
	}
	s.Suite.Mu.Lock()
	user := s.Users[s.CurrentUser]
	s.Suite.Mu.Unlock()

	session := &TestSession{
		TestUser: user,
		Client:   &http.Client{},
		Header:   http.Header{},
	}
	s.sessions[s.CurrentUser] = session
	return session
}

// TestSession holds one client's pending headers and last response.
type TestSession struct {
	TestUser  *TestUser
	Client    *http.Client
	Header    http.Header
	Resp      *http.Response
	RespBytes []byte
	respJSON  interface{}
}

// RespJSON decodes the last response body, caching the result.
func (s *TestSession) RespJSON() (interface{}, error) {
	if s.respJSON != nil {
		return s.respJSON, nil
	}
	if s.RespBytes == nil {
		return nil, fmt.Errorf("no response body")
	}
	if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
		return nil, fmt.Errorf("response is not json: %w\n%s", err, s.RespBytes)
	}
	return s.respJSON, nil
}

// SetRespBytes replaces the last response body.
func (s *TestSession) SetRespBytes(data []byte) {
	s.RespBytes = data
	s.respJSON = nil
}

func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:     suite,
		Users:     map[string]*TestUser{},
		Variables: map[string]interface{}{},
		sessions:  map[string]*TestSession{},
	}

	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		if suite.DB == nil {
			return c, nil
		}
		return c, suite.DB.ClearAll(c)
	})
	ctx.After(func(c context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		for _, session := range s.sessions {
			if session.Resp != nil {
				_ = session.Resp.Body.Close()
			}
		}
		return c, nil
	})

	for _, module := range StepModules {
		module(ctx, s)
	}
}
