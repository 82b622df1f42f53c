package askdbctl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Plain      bool
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type client struct {
	http    *http.Client
	baseURL string
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askdbctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:7860"), "askdb API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")
	plain := fs.Bool("plain", defaults.Plain, "print plain text instead of styled blocks")
	limit := fs.Int("limit", 0, "number of history entries to show (0 uses the server default)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	httpClient := defaults.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: *timeout}
	}
	c := &client{http: httpClient, baseURL: strings.TrimRight(*baseURL, "/")}
	out := newRenderer(stdout, *plain)

	command := strings.TrimSpace(fs.Arg(0))
	var err error
	switch command {
	case "health":
		err = c.printJSON(ctx, out, http.MethodGet, "/v1/health", nil)
	case "ready":
		err = c.printJSON(ctx, out, http.MethodGet, "/v1/ready", nil)
	case "info":
		err = c.printJSON(ctx, out, http.MethodGet, "/v1/info", nil)
	case "history":
		path := "/v1/history"
		if *limit > 0 {
			path += "?" + url.Values{"limit": []string{strconv.Itoa(*limit)}}.Encode()
		}
		err = c.printJSON(ctx, out, http.MethodGet, path, nil)
	case "history-clear":
		if _, err = c.do(ctx, http.MethodDelete, "/v1/history", nil); err == nil {
			out.line("history cleared")
		}
	case "schema":
		err = c.showSchema(ctx, out)
	case "samples":
		err = c.showSamples(ctx, out)
	case "ask":
		question := strings.Join(fs.Args()[1:], " ")
		err = c.ask(ctx, out, question)
	case "repl":
		stdin := defaults.Stdin
		if stdin == nil {
			stdin = strings.NewReader("")
		}
		err = c.repl(ctx, out, stdin)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	if err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

type askResult struct {
	Answer    string `json:"answer"`
	SQL       string `json:"sql"`
	RawResult string `json:"raw_result"`
	Status    string `json:"status"`
	Stage     string `json:"stage"`
}

func (c *client) ask(ctx context.Context, out *renderer, question string) error {
	body, err := c.do(ctx, http.MethodPost, "/v1/ask", map[string]string{"question": question})
	if err != nil {
		return err
	}
	var result askResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode ask response: %w", err)
	}
	out.answer(result)
	return nil
}

func (c *client) showSchema(ctx context.Context, out *renderer) error {
	body, err := c.do(ctx, http.MethodGet, "/v1/schema", nil)
	if err != nil {
		return err
	}
	var payload struct {
		Schema string `json:"schema"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode schema response: %w", err)
	}
	out.block("Database Schema", payload.Schema)
	return nil
}

func (c *client) showSamples(ctx context.Context, out *renderer) error {
	body, err := c.do(ctx, http.MethodGet, "/v1/samples", nil)
	if err != nil {
		return err
	}
	var payload struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode samples response: %w", err)
	}
	out.list("Sample Questions", payload.Questions)
	return nil
}

// repl reads one question per line until EOF or :quit. Lines starting with a
// colon are commands; failures are printed and the loop continues.
func (c *client) repl(ctx context.Context, out *renderer, in io.Reader) error {
	out.title("Text-to-SQL Assistant")
	out.line("Type a question, :samples, :schema, :history or :quit.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		out.prompt()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		var err error
		switch line {
		case ":quit", ":q", "exit":
			return nil
		case ":schema":
			err = c.showSchema(ctx, out)
		case ":samples":
			err = c.showSamples(ctx, out)
		case ":history":
			err = c.printJSON(ctx, out, http.MethodGet, "/v1/history", nil)
		default:
			err = c.ask(ctx, out, line)
		}
		if err != nil {
			out.failure(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (c *client) printJSON(ctx context.Context, out *renderer, method, path string, payload any) error {
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if pretty, ok := prettyJSON(body); ok {
		out.line(pretty)
		return nil
	}
	if len(body) > 0 {
		out.line(string(body))
	}
	return nil
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askdbctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health             GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready              GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  info               GET /v1/info")
	_, _ = fmt.Fprintln(w, "  schema             GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  samples            GET /v1/samples")
	_, _ = fmt.Fprintln(w, "  history            GET /v1/history (-limit N)")
	_, _ = fmt.Fprintln(w, "  history-clear      DELETE /v1/history")
	_, _ = fmt.Fprintln(w, "  ask <question...>  POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  repl               interactive question loop")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
