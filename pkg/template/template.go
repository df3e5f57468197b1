// Package template renders text/template strings over execution contexts.
package template

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/orchestra/pkg/models"
	gojson "github.com/goccy/go-json"
)

// Scope names the execution a context belongs to.
type Scope struct {
	WorkflowID      string
	ExecutionID     string
	NodeID          string
	NodeExecutionID string
}

// Bindings returns what templates can reach: .data, .decisions, .env and .execution.
func Bindings(executionCtx *models.ExecutionContext, scope Scope) map[string]any {
	data := map[string]any{}
	decisions := []models.Decision{}

	if executionCtx != nil {
		data = executionCtx.Data
		decisions = executionCtx.Decisions
	}

	return map[string]any{
		"data":      data,
		"decisions": decisions,
		"env":       envVars(),
		"execution": map[string]any{
			"id":                scope.ExecutionID,
			"workflow_id":       scope.WorkflowID,
			"node_id":           scope.NodeID,
			"node_execution_id": scope.NodeExecutionID,
		},
	}
}

func RenderWithContext(input string, executionCtx *models.ExecutionContext, scope Scope) (any, error) {
	return Render(input, Bindings(executionCtx, scope))
}

// Render executes templateStr and decodes the output as JSON, a number or a boolean when
// it looks like one, falling back to the plain string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("render").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"json": func(v any) (string, error) {
				out, err := gojson.Marshal(v)

				return string(out), err
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := gojson.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if ok {
			envMap[key] = value
		}
	}

	return envMap
}
