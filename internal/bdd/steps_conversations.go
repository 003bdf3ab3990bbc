package bdd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chirino/chatmem-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		c := &conversationSteps{s: s}
		ctx.Step(`^a conversation "([^"]*)" on platform "([^"]*)" exists$`, c.aConversationOnPlatformExists)
		ctx.Step(`^the following conversations exist:$`, c.theFollowingConversationsExist)
		ctx.Step(`^I build conversation "([^"]*)" on platform "([^"]*)" as \${([^}]*)}$`, c.iBuildConversationAs)
		ctx.Step(`^I upsert conversation "([^"]*)" on platform "([^"]*)" with title "([^"]*)"$`, c.iUpsertConversationWithTitle)
		ctx.Step(`^I get conversation "([^"]*)"$`, c.iGetConversation)
		ctx.Step(`^I list conversations$`, c.iListConversations)
		ctx.Step(`^I list conversations with query "([^"]*)"$`, c.iListConversationsWithQuery)
		ctx.Step(`^the listed conversation ids should be "([^"]*)"$`, c.theListedConversationIDsShouldBe)
	})
}

const conversationsPath = "/api/v1/conversations"

type conversationSteps struct {
	s *cucumber.TestScenario
}

type conversationFixture struct {
	id        string
	platform  string
	title     string
	processed bool
	messages  int
}

// body returns a valid upsert payload for the conversation.
func (fx conversationFixture) body() map[string]interface{} {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	messages := make([]interface{}, 0, fx.messages)
	for i := 0; i < fx.messages; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		messages = append(messages, map[string]interface{}{
			"id":          fmt.Sprintf("%s-m%d", fx.id, i+1),
			"role":        role,
			"content":     fmt.Sprintf("message %d", i+1),
			"contentType": "text",
			"timestamp":   created.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
	}
	body := map[string]interface{}{
		"id":        fx.id,
		"platform":  fx.platform,
		"title":     fx.title,
		"url":       "https://" + fx.platform + ".example.com/c/" + fx.id,
		"createdAt": created.Format(time.RFC3339),
		"updatedAt": created.Add(time.Duration(fx.messages) * time.Minute).Format(time.RFC3339),
		"messages":  messages,
		"processed": fx.processed,
		"tags":      []string{},
		"metadata":  map[string]interface{}{},
	}
	if fx.processed {
		body["processedAt"] = created.Add(time.Hour).Format(time.RFC3339)
	}
	return body
}

func (c *conversationSteps) upsert(fx conversationFixture) error {
	data, err := json.Marshal(fx.body())
	if err != nil {
		return err
	}
	if err := c.s.SendHTTPRequestWithBody(http.MethodPost, conversationsPath, &godog.DocString{Content: string(data)}, false); err != nil {
		return err
	}
	session := c.s.Session()
	if session.Resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upsert of %q failed with %d: %s", fx.id, session.Resp.StatusCode, session.RespBytes)
	}
	return nil
}

func (c *conversationSteps) aConversationOnPlatformExists(id, platform string) error {
	return c.upsert(conversationFixture{id: id, platform: platform, title: "Conversation " + id, messages: 2})
}

// theFollowingConversationsExist upserts one conversation per table row, in
// order. Columns: id, platform, and optionally title, processed and messages.
func (c *conversationSteps) theFollowingConversationsExist(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("expected a header row and at least one data row")
	}
	headers := make([]string, len(table.Rows[0].Cells))
	for i, cell := range table.Rows[0].Cells {
		headers[i] = cell.Value
	}
	for _, row := range table.Rows[1:] {
		fx := conversationFixture{messages: 1}
		for i, cell := range row.Cells {
			value, err := c.s.Expand(cell.Value)
			if err != nil {
				return err
			}
			switch headers[i] {
			case "id":
				fx.id = value
			case "platform":
				fx.platform = value
			case "title":
				fx.title = value
			case "processed":
				fx.processed, err = strconv.ParseBool(value)
			case "messages":
				fx.messages, err = strconv.Atoi(value)
			default:
				err = fmt.Errorf("unknown column %q", headers[i])
			}
			if err != nil {
				return err
			}
		}
		if fx.title == "" {
			fx.title = "Conversation " + fx.id
		}
		if err := c.upsert(fx); err != nil {
			return err
		}
		// Keeps write times distinct so list order is deterministic.
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func (c *conversationSteps) iBuildConversationAs(id, platform, as string) error {
	c.s.Variables[as] = conversationFixture{id: id, platform: platform, title: "Conversation " + id, messages: 2}.body()
	return nil
}

func (c *conversationSteps) iUpsertConversationWithTitle(id, platform, title string) error {
	fx := conversationFixture{id: id, platform: platform, title: title, messages: 2}
	data, err := json.Marshal(fx.body())
	if err != nil {
		return err
	}
	return c.s.SendHTTPRequestWithBody(http.MethodPost, conversationsPath, &godog.DocString{Content: string(data)}, false)
}

func (c *conversationSteps) iGetConversation(id string) error {
	return c.s.SendHTTPRequestWithBody(http.MethodGet, conversationsPath+"/"+id, nil, false)
}

func (c *conversationSteps) iListConversations() error {
	return c.s.SendHTTPRequestWithBody(http.MethodGet, conversationsPath, nil, false)
}

func (c *conversationSteps) iListConversationsWithQuery(query string) error {
	return c.s.SendHTTPRequestWithBody(http.MethodGet, conversationsPath+"?"+query, nil, false)
}

func (c *conversationSteps) theListedConversationIDsShouldBe(expected string) error {
	doc, err := c.s.Session().RespJSON()
	if err != nil {
		return err
	}
	items, ok := doc.([]interface{})
	if !ok {
		return fmt.Errorf("expected a json array, got %T", doc)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected conversation objects, got %T", item)
		}
		ids = append(ids, fmt.Sprintf("%v", m["id"]))
	}
	if actual := strings.Join(ids, ","); actual != expected {
		return fmt.Errorf("expected conversations %q, got %q", expected, actual)
	}
	return nil
}
