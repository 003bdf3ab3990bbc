package cucumber

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I (GET|POST) path "([^"]*)"$`, s.iCallPath)
		ctx.Step(`^I (GET|POST) path "([^"]*)" with json body:$`, s.iCallPathWithJSONBody)
		ctx.Step(`^I (GET|POST) path "([^"]*)" with body:$`, s.iCallPathWithRawBody)
		ctx.Step(`^I set the "([^"]*)" header to "([^"]*)"$`, s.iSetTheHeaderTo)
	})
}

func (s *TestScenario) iCallPath(method, path string) error {
	return s.SendHTTPRequestWithBody(method, path, nil, false)
}

func (s *TestScenario) iCallPathWithJSONBody(method, path string, body *godog.DocString) error {
	return s.SendHTTPRequestWithBody(method, path, body, true)
}

// iCallPathWithRawBody leaves the body untouched so scenarios can send
// malformed JSON or a literal "${".
func (s *TestScenario) iCallPathWithRawBody(method, path string, body *godog.DocString) error {
	return s.SendHTTPRequestWithBody(method, path, body, false)
}

func (s *TestScenario) iSetTheHeaderTo(name, value string) error {
	expanded, err := s.Expand(value)
	if err != nil {
		return err
	}
	s.Session().Header.Set(name, expanded)
	return nil
}

// SendHTTPRequestWithBody sends a request to the server as the current client
// and records the response in its session. Headers set by steps apply to this
// request only, except Authorization.
func (s *TestScenario) SendHTTPRequestWithBody(method, path string, body *godog.DocString, expand bool) error {
	path, err := s.Expand(path)
	if err != nil {
		return err
	}
	var content string
	if body != nil {
		content = body.Content
		if expand {
			if content, err = s.Expand(content); err != nil {
				return err
			}
		}
	}

	session := s.Session()
	if session.Resp != nil {
		_ = session.Resp.Body.Close()
		session.Resp = nil
	}
	session.SetRespBytes(nil)

	req, err := http.NewRequestWithContext(context.Background(), method, s.Suite.APIURL+path, strings.NewReader(content))
	if err != nil {
		return err
	}
	req.Header, session.Header = session.Header, http.Header{}
	if auth := req.Header.Get("Authorization"); auth != "" {
		session.Header.Set("Authorization", auth)
	} else if session.TestUser != nil && session.TestUser.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.TestUser.Token)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := session.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	session.Resp = resp
	session.SetRespBytes(data)
	return nil
}
