package cucumber

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/cucumber/godog"
	"github.com/itchyny/gojq"
	"github.com/pmezard/go-difflib/difflib"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should match json:$`, s.theResponseShouldMatchJSON)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJSON)
		ctx.Step(`^the response should be a json array of (\d+) items?$`, s.theResponseShouldBeAJSONArrayOf)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.theSelectionFromTheResponseShouldMatch)
		ctx.Step(`^the response header "([^"]*)" should match "([^"]*)"$`, s.theResponseHeaderShouldMatch)
		ctx.Step(`^the response header "([^"]*)" should not be empty$`, s.theResponseHeaderShouldNotBeEmpty)
	})
}

func (s *TestScenario) response() (*TestSession, error) {
	session := s.Session()
	if session.Resp == nil && session.RespBytes == nil {
		return nil, fmt.Errorf("no response recorded yet")
	}
	return session, nil
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response recorded yet")
	}
	if session.Resp.StatusCode != expected {
		return fmt.Errorf("expected response code %d, got %d: %s", expected, session.Resp.StatusCode, session.RespBytes)
	}
	return nil
}

func (s *TestScenario) theResponseShouldMatchJSON(expected *godog.DocString) error {
	return s.compareJSON(expected.Content, false)
}

func (s *TestScenario) theResponseShouldContainJSON(expected *godog.DocString) error {
	return s.compareJSON(expected.Content, true)
}

// compareJSON checks the response body against expected after expanding
// variables. With subset set, objects in the response may carry extra keys.
func (s *TestScenario) compareJSON(expected string, subset bool) error {
	session, err := s.response()
	if err != nil {
		return err
	}
	actual, err := session.RespJSON()
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	var want interface{}
	if err := json.Unmarshal([]byte(expected), &want); err != nil {
		return fmt.Errorf("expected json does not parse: %w\n%s", err, expected)
	}

	if subset {
		if err := containsJSON(want, actual, "$"); err != nil {
			return fmt.Errorf("%w\n%s", err, jsonDiff(want, actual))
		}
		return nil
	}
	if !reflect.DeepEqual(want, actual) {
		return fmt.Errorf("response does not match\n%s", jsonDiff(want, actual))
	}
	return nil
}

// containsJSON reports the first place where actual lacks something in want.
// Arrays must have the same length.
func containsJSON(want, actual interface{}, at string) error {
	switch w := want.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s: expected an object, got %T", at, actual)
		}
		for key, value := range w {
			got, ok := a[key]
			if !ok {
				return fmt.Errorf("%s: missing key %q", at, key)
			}
			if err := containsJSON(value, got, at+"."+key); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok {
			return fmt.Errorf("%s: expected an array, got %T", at, actual)
		}
		if len(a) != len(w) {
			return fmt.Errorf("%s: expected %d items, got %d", at, len(w), len(a))
		}
		for i := range w {
			if err := containsJSON(w[i], a[i], fmt.Sprintf("%s[%d]", at, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if !reflect.DeepEqual(want, actual) {
		return fmt.Errorf("%s: expected %v, got %v", at, want, actual)
	}
	return nil
}

func jsonDiff(want, actual interface{}) string {
	w, _ := json.MarshalIndent(want, "", "  ")
	a, _ := json.MarshalIndent(actual, "", "  ")
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(w)),
		B:        difflib.SplitLines(string(a)),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return diff
}

func (s *TestScenario) theResponseShouldBeAJSONArrayOf(expected int) error {
	doc, err := s.Session().RespJSON()
	if err != nil {
		return err
	}
	items, ok := doc.([]interface{})
	if !ok {
		return fmt.Errorf("expected a json array, got %T", doc)
	}
	if len(items) != expected {
		return fmt.Errorf("expected %d items, got %d", expected, len(items))
	}
	return nil
}

// theSelectionFromTheResponseShouldMatch runs a jq selector over the response
// and compares the first result as text. JSON null reads as "null".
func (s *TestScenario) theSelectionFromTheResponseShouldMatch(selector, expected string) error {
	doc, err := s.Session().RespJSON()
	if err != nil {
		return err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}

	result, found := query.Run(doc).Next()
	if !found {
		return fmt.Errorf("selector %s matched nothing in the response", selector)
	}
	if err, ok := result.(error); ok {
		return fmt.Errorf("selector %s: %w", selector, err)
	}
	actual := "null"
	if result != nil {
		if actual, err = text(result); err != nil {
			return err
		}
	}
	if actual != expected {
		return fmt.Errorf("selection %s: expected %q, got %q", selector, expected, actual)
	}
	return nil
}

func (s *TestScenario) theResponseHeaderShouldMatch(header, expected string) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response recorded yet")
	}
	expected, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if actual := session.Resp.Header.Get(header); actual != expected {
		return fmt.Errorf("response header %s: expected %q, got %q", header, expected, actual)
	}
	return nil
}

func (s *TestScenario) theResponseHeaderShouldNotBeEmpty(header string) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response recorded yet")
	}
	if strings.TrimSpace(session.Resp.Header.Get(header)) == "" {
		return fmt.Errorf("response header %s is empty", header)
	}
	return nil
}
