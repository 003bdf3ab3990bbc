package bdd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chirino/chatmem-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		sq := &sqlSteps{s: s}
		ctx.Step(`^I execute SQL query:$`, sq.iExecuteSQLQuery)
		ctx.Step(`^the SQL result should have (\d+) rows?$`, sq.theSQLResultShouldHaveRows)
		ctx.Step(`^the "([^"]*)" column of conversation "([^"]*)" should be "([^"]*)"$`, sq.theColumnOfConversationShouldBe)
		ctx.Step(`^the database should hold (\d+) conversations?$`, sq.theDatabaseShouldHoldConversations)
	})
}

type sqlSteps struct {
	s        *cucumber.TestScenario
	lastRows []map[string]interface{}
}

func (sq *sqlSteps) iExecuteSQLQuery(query *godog.DocString) error {
	if sq.s.Suite.DB == nil {
		return fmt.Errorf("no TestDB configured")
	}

	expanded, err := sq.s.Expand(query.Content)
	if err != nil {
		return err
	}

	sq.lastRows, err = sq.s.Suite.DB.ExecSQL(context.Background(), expanded)
	if err != nil {
		return err
	}

	// Response assertions also work on SQL results.
	result, err := json.Marshal(sq.lastRows)
	if err != nil {
		return err
	}
	session := sq.s.Session()
	session.SetRespBytes(result)

	return nil
}

func (sq *sqlSteps) theSQLResultShouldHaveRows(count int) error {
	if len(sq.lastRows) != count {
		return fmt.Errorf("expected %d row(s), got %d", count, len(sq.lastRows))
	}
	return nil
}

// valueAt compares one cell of the last result after expanding variables.
func (sq *sqlSteps) valueAt(row int, column, expected string) error {
	if row >= len(sq.lastRows) {
		return fmt.Errorf("row index %d out of range (have %d rows)", row, len(sq.lastRows))
	}
	expanded, err := sq.s.Expand(expected)
	if err != nil {
		return err
	}
	value := sq.lastRows[row][column]
	actual := fmt.Sprintf("%v", value)
	if actual != expanded {
		return fmt.Errorf("SQL result row %d column '%s': expected '%s', got '%s'", row, column, expanded, actual)
	}
	return nil
}

// theColumnOfConversationShouldBe reads one column of one stored row. Column
// names are interpolated as is, so features must only use trusted names.
func (sq *sqlSteps) theColumnOfConversationShouldBe(column, id, expected string) error {
	expandedID, err := sq.s.Expand(id)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT %s AS value FROM conversations WHERE id = '%s'", column, strings.ReplaceAll(expandedID, "'", "''"))
	rows, err := sq.s.Suite.DB.ExecSQL(context.Background(), query)
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return fmt.Errorf("expected conversation %q to be stored once, found %d rows", expandedID, len(rows))
	}
	sq.lastRows = rows
	return sq.valueAt(0, "value", expected)
}

func (sq *sqlSteps) theDatabaseShouldHoldConversations(count int) error {
	rows, err := sq.s.Suite.DB.ExecSQL(context.Background(), "SELECT COUNT(*) AS n FROM conversations")
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return fmt.Errorf("count query returned %d rows", len(rows))
	}
	actual := fmt.Sprintf("%v", rows[0]["n"])
	if actual != fmt.Sprintf("%d", count) {
		return fmt.Errorf("expected %d stored conversation(s), got %s", count, actual)
	}
	return nil
}
