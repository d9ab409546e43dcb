// Package translate converts natural-language input into shell command
// candidates using an Ollama-style generate endpoint. The model is told
// the working directory, a directory listing, and recent history, and
// must answer in a fixed COMMAND/EXPLANATION format.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dirac-sh/dirac"
	defaults "github.com/dirac-sh/dirac/default"
)

// Client calls the translator endpoint.
type Client struct {
	http   *resty.Client
	base   string
	model  string
	prompt *template.Template
}

// genRequest is the generate endpoint request body.
type genRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// genResponse is the generate endpoint response body.
type genResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// New creates a client from the resolved configuration. The prompt
// template comes from the user's prompt file when present, otherwise
// the embedded default.
func New(cfg *dirac.Config) (*Client, error) {
	base := dirac.ResolveTranslatorBaseURL(cfg)
	if base == "" {
		return nil, fmt.Errorf("translator base_url is not configured")
	}
	model := dirac.ResolveTranslatorModel(cfg)
	if model == "" {
		return nil, fmt.Errorf("translator model is not configured")
	}

	timeout := dirac.ResolveTranslatorTimeout(cfg)
	if timeout <= 0 {
		timeout = 30
	}

	hc := resty.New()
	hc.SetTimeout(time.Duration(timeout) * time.Second)
	if key := dirac.ResolveTranslatorAPIKey(cfg); key != "" {
		hc.SetHeader("Authorization", "Bearer "+key)
	}

	tmpl, err := loadPrompt()
	if err != nil {
		return nil, err
	}

	return &Client{
		http:   hc,
		base:   strings.TrimRight(base, "/"),
		model:  model,
		prompt: tmpl,
	}, nil
}

// loadPrompt parses the user's prompt override, falling back to the
// embedded template.
func loadPrompt() (*template.Template, error) {
	text := defaults.DefaultPrompt
	if data, err := os.ReadFile(dirac.PromptPath()); err == nil {
		text = string(data)
	}
	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return tmpl, nil
}

// Translate sends one request and parses the model's answer. The call
// honors ctx and the client timeout, whichever ends first.
func (c *Client) Translate(ctx context.Context, req dirac.TranslateRequest) (*dirac.TranslateResult, error) {
	var prompt strings.Builder
	if err := c.prompt.Execute(&prompt, req); err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	body := genRequest{
		Model:  c.model,
		Prompt: prompt.String(),
		Stream: false,
		Options: map[string]any{
			"temperature": 0.1,
		},
	}

	var out genResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(c.base + "/api/generate")
	if err != nil {
		return nil, fmt.Errorf("translator request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("translator returned status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return nil, fmt.Errorf("translator: %s", out.Error)
	}

	res, err := parseResponse(out.Response)
	if err != nil {
		slog.Debug("unparseable translator response", "response", out.Response)
		return nil, err
	}
	return res, nil
}

// parseResponse extracts the COMMAND and EXPLANATION lines from the
// model's answer, tolerating fences and leading chatter.
func parseResponse(text string) (*dirac.TranslateResult, error) {
	res := &dirac.TranslateResult{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "`"))
		if rest, ok := strings.CutPrefix(line, "COMMAND:"); ok && res.Command == "" {
			res.Command = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "EXPLANATION:"); ok && res.Explanation == "" {
			res.Explanation = strings.TrimSpace(rest)
		}
	}
	if res.Command == "" {
		return nil, fmt.Errorf("translator response has no command")
	}
	return res, nil
}
