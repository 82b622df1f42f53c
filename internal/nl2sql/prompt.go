package nl2sql

import (
	"bytes"
	"fmt"
	"text/template"
)

const sqlSystemPrompt = "Given an input question, convert it to a SQL query. No pre-amble. " +
	"Please do not return anything else apart from the SQL query, no prefix or suffix quotes, no sql keyword, nothing please"

const answerSystemPrompt = "Given an input question and SQL response, convert it to a natural language answer. No pre-amble."

var sqlUserTemplate = template.Must(template.New("sql_user").Option("missingkey=error").Parse(
	`Based on the table schema below, write a SQL query that would answer the user's question:
{{.Schema}}

Question: {{.Question}}
SQL Query:`))

var answerUserTemplate = template.Must(template.New("answer_user").Option("missingkey=error").Parse(
	`Based on the table schema below, question, sql query, and sql response, write a natural language response:
{{.Schema}}

Question: {{.Question}}
SQL Query: {{.SQL}}
SQL Response: {{.Result}}`))

type sqlPromptData struct {
	Schema   string
	Question string
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func sqlSystem(engine string) string {
	if engine == "" {
		return sqlSystemPrompt
	}
	return sqlSystemPrompt + "\nThe database engine is " + engine + "."
}
