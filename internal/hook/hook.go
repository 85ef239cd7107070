// Package hook speaks the host's hook protocol: it decodes the JSON payload
// a host pipes on stdin and renders an engine outcome as stdout JSON, a
// stderr message and an exit code.
package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gzhole/skillgate/internal/engine"
	skerrors "github.com/gzhole/skillgate/internal/errors"
)

// Host event names.
const (
	EventUserPromptSubmit = "UserPromptSubmit"
	EventPreToolUse       = "PreToolUse"
)

type Kind int

const (
	KindUnsupported Kind = iota
	KindPrompt
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindPrompt:
		return "prompt"
	case KindFile:
		return "file"
	default:
		return "unsupported"
	}
}

// Payload covers both prompt-submit and tool-use events. Claude Code sends:
//
//	{"session_id": "...", "prompt": "...", "cwd": "...", "hook_event_name": "UserPromptSubmit"}
//	{"session_id": "...", "tool_name": "Edit", "tool_input": {"file_path": "...", "new_string": "..."}}
type Payload struct {
	SessionID     string    `json:"session_id"`
	Prompt        string    `json:"prompt"`
	Text          string    `json:"text"`
	Cwd           string    `json:"cwd"`
	HookEventName string    `json:"hook_event_name"`
	ToolName      string    `json:"tool_name"`
	ToolInput     ToolInput `json:"tool_input"`

	// Raw is set when stdin was not JSON and was taken as the prompt.
	Raw bool `json:"-"`
}

type ToolInput struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
	// Content is the whole file for Write.
	Content string `json:"content"`
	Edits   []Edit `json:"edits"`
}

// Edit is one MultiEdit replacement.
type Edit struct {
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

// Decode parses a hook payload. Input that is not a valid JSON object is
// taken verbatim as a prompt. Empty input decodes to an unsupported payload.
func Decode(data []byte) *Payload {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &Payload{}
	}
	if trimmed[0] == '{' {
		var p Payload
		if err := json.Unmarshal(trimmed, &p); err == nil {
			return &p
		}
	}
	return &Payload{Prompt: string(trimmed), Raw: true}
}

// PromptText is the prompt, falling back to the legacy text field.
func (p *Payload) PromptText() string {
	if p.Prompt != "" {
		return p.Prompt
	}
	return p.Text
}

func (p *Payload) Kind() Kind {
	switch {
	case p.HookEventName == EventUserPromptSubmit:
		return KindPrompt
	case p.ToolInput.FilePath != "":
		return KindFile
	case p.HookEventName == "" && p.ToolName == "" && p.PromptText() != "":
		return KindPrompt
	default:
		return KindUnsupported
	}
}

func (p *Payload) PromptInput() engine.PromptInput {
	return engine.PromptInput{SessionID: p.SessionID, Prompt: p.PromptText()}
}

// FileInput derives the file event. New and old content come from the
// field the tool uses: content for Write, new_string/old_string for Edit,
// and every edit joined by newlines for MultiEdit.
func (p *Payload) FileInput() engine.FileInput {
	ti := p.ToolInput
	in := engine.FileInput{
		SessionID: p.SessionID,
		ToolName:  p.ToolName,
		FilePath:  ti.FilePath,
		Cwd:       p.Cwd,
	}

	switch {
	case ti.Content != "":
		in.NewContent = ti.Content
	case len(ti.Edits) > 0:
		news := make([]string, 0, len(ti.Edits))
		olds := make([]string, 0, len(ti.Edits))
		for _, e := range ti.Edits {
			news = append(news, e.NewString)
			olds = append(olds, e.OldString)
		}
		in.NewContent = strings.Join(news, "\n")
		in.OldContent = strings.Join(olds, "\n")
	default:
		in.NewContent = ti.NewString
		in.OldContent = ti.OldString
	}
	return in
}

// Output is the JSON a hook prints to stdout to add context.
type Output struct {
	HookSpecificOutput SpecificOutput `json:"hookSpecificOutput"`
}

type SpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Respond writes the outcome for an event of the given kind and returns the
// exit code. Advice goes to stdout as JSON; a block goes to stderr with
// exit code 2.
func Respond(stdout, stderr io.Writer, kind Kind, out engine.Outcome) (int, error) {
	switch out.Action {
	case engine.ActionBlock:
		if kind != KindFile {
			return skerrors.ExitAllow, nil
		}
		if _, err := fmt.Fprintln(stderr, out.BlockMessage); err != nil {
			return skerrors.ExitBlock, skerrors.Wrap(err, "writing block message")
		}
		return skerrors.ExitBlock, nil

	case engine.ActionAdvise:
		event := EventPreToolUse
		if kind == KindPrompt {
			event = EventUserPromptSubmit
		}
		data, err := json.Marshal(Output{HookSpecificOutput: SpecificOutput{
			HookEventName:     event,
			AdditionalContext: out.Context,
		}})
		if err != nil {
			return skerrors.ExitAllow, skerrors.Wrap(err, "encoding hook output")
		}
		if _, err := fmt.Fprintln(stdout, string(data)); err != nil {
			return skerrors.ExitAllow, skerrors.Wrap(err, "writing hook output")
		}
	}
	return skerrors.ExitAllow, nil
}
