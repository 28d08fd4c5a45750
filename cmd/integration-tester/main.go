package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/apptype"
)

type StepResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type Report struct {
	SSEURL     string       `json:"sse_url"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Steps      []StepResult `json:"steps"`
	Passed     bool         `json:"passed"`
}

var expectedTools = []string{"ask", "retrieve_context", "related_concepts", "extract_query", "health_check"}

func main() {
	sseURL := flag.String("sse-url", "http://localhost:8080/sse", "SSE endpoint URL")
	project := flag.String("project", "default", "Project name to use")
	question := flag.String("question", "What is the current state of climate change?", "Question to ask")
	concept := flag.String("concept", "Climate Change", "Seed concept for related_concepts")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-tester", Version: "dev"}, nil)
	transport := mcp.NewSSEClientTransport(*sseURL, nil)

	start := time.Now()
	report := Report{SSEURL: *sseURL, StartedAt: start}
	steps := make([]StepResult, 0, 8)

	var session *mcp.ClientSession
	steps = append(steps, step("connect", func() error {
		var err error
		session, err = client.Connect(ctx, transport)
		return err
	}))
	if session == nil {
		finish(report, steps, start)
	}

	steps = append(steps,
		step("list_tools", func() error { return listTools(ctx, session) }),
		step("health_check", func() error {
			var res apptype.HealthResult
			return callTool(ctx, session, "health_check", apptype.HealthArgs{}, &res)
		}),
		step("extract_query", func() error {
			var res apptype.ExtractResult
			return callTool(ctx, session, "extract_query", apptype.ExtractArgs{Question: *question}, &res)
		}),
		step("related_concepts", func() error {
			var res apptype.ConceptsResult
			args := apptype.RelatedConceptsArgs{ProjectArgs: apptype.ProjectArgs{ProjectName: *project}, Names: []string{*concept}}
			return callTool(ctx, session, "related_concepts", args, &res)
		}),
		step("retrieve_context", func() error {
			var res apptype.RetrieveResult
			args := apptype.RetrieveArgs{ProjectArgs: apptype.ProjectArgs{ProjectName: *project}, Question: *question}
			return callTool(ctx, session, "retrieve_context", args, &res)
		}),
		step("ask", func() error {
			var res apptype.AskResult
			args := apptype.AskArgs{ProjectArgs: apptype.ProjectArgs{ProjectName: *project}, Question: *question}
			if err := callTool(ctx, session, "ask", args, &res); err != nil {
				return err
			}
			if res.Answer == "" {
				return errors.New("empty answer")
			}
			return nil
		}),
		step("ask_missing_question", func() error {
			var res apptype.AskResult
			err := callTool(ctx, session, "ask", apptype.AskArgs{ProjectArgs: apptype.ProjectArgs{ProjectName: *project}}, &res)
			if err == nil {
				return errors.New("expected an input error")
			}
			return nil
		}),
	)

	_ = session.Close()
	finish(report, steps, start)
}

func step(name string, fn func() error) StepResult {
	t0 := time.Now()
	res := StepResult{Name: name, Success: true}
	if err := fn(); err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

func listTools(ctx context.Context, session *mcp.ClientSession) error {
	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return err
	}
	names := make([]string, 0, len(tools.Tools))
	for _, t := range tools.Tools {
		names = append(names, t.Name)
	}
	for _, want := range expectedTools {
		if !slices.Contains(names, want) {
			return fmt.Errorf("tool %q not advertised (got %v)", want, names)
		}
	}
	return nil
}

// callTool sends args and decodes the structured result into out. Tool
// errors come back as IsError results rather than transport errors.
func callTool(ctx context.Context, session *mcp.ClientSession, name string, args, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(raw)})
	if err != nil {
		return err
	}
	if res.IsError {
		msg := "tool error"
		if len(res.Content) > 0 {
			if tc, ok := res.Content[0].(*mcp.TextContent); ok {
				msg = tc.Text
			}
		}
		return errors.New(msg)
	}
	if res.StructuredContent == nil {
		return nil
	}
	b, err := json.Marshal(res.StructuredContent)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func finish(report Report, steps []StepResult, start time.Time) {
	report.Steps = steps
	report.DurationMs = elapsedMsSince(start)
	report.Passed = true
	for _, s := range steps {
		if !s.Success {
			report.Passed = false
			break
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if !report.Passed {
		os.Exit(1)
	}
	os.Exit(0)
}

func elapsedMsSince(t0 time.Time) int64 {
	return time.Since(t0).Milliseconds()
}
