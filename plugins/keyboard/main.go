// Package main is the keyboard plugin. It taps keys, shortcuts and text on
// the current desktop through robotgo.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-vgo/robotgo"
)

// Request is the input from the plugin executor.
type Request struct {
	Action  string          `json:"action"`
	Trigger string          `json:"trigger"`
	Mode    string          `json:"mode,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeyParams are the parameters of the key and shortcut actions.
type KeyParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"`
}

// TypeParams are the parameters of the type action.
type TypeParams struct {
	Text string `json:"text"`
}

// modifierMap maps friendly modifier names to robotgo's.
var modifierMap = map[string]string{
	"command": "cmd",
	"cmd":     "cmd",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

// keyboard is the desktop the plugin drives.
type keyboard interface {
	Tap(key string, modifiers []string) error
	Type(text string)
}

type robotKeyboard struct{}

func (robotKeyboard) Tap(key string, modifiers []string) error {
	args := make([]interface{}, len(modifiers))
	for i, m := range modifiers {
		args[i] = m
	}
	return robotgo.KeyTap(key, args...)
}

func (robotKeyboard) Type(text string) {
	robotgo.TypeStr(text)
}

func main() {
	resp := handle(os.Stdin, robotKeyboard{})
	json.NewEncoder(os.Stdout).Encode(resp)
}

// handle decodes one request from r and performs it on kb.
func handle(r io.Reader, kb keyboard) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return failure(fmt.Errorf("failed to decode request: %w", err))
	}

	var err error
	switch req.Action {
	case "key", "shortcut":
		err = tapKey(req.Params, kb)
	case "type":
		err = typeText(req.Params, kb)
	default:
		err = fmt.Errorf("unknown action: %s", req.Action)
	}
	if err != nil {
		return failure(fmt.Errorf("action %s failed: %w", req.Action, err))
	}
	return Response{Success: true}
}

func tapKey(params json.RawMessage, kb keyboard) error {
	var p KeyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("failed to parse params: %w", err)
	}
	if p.Key == "" {
		return errors.New("key is required")
	}

	mods, err := normalizeModifiers(p.Modifiers)
	if err != nil {
		return err
	}
	return kb.Tap(strings.ToLower(p.Key), mods)
}

func typeText(params json.RawMessage, kb keyboard) error {
	var p TypeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("failed to parse params: %w", err)
	}
	if p.Text == "" {
		return errors.New("text is required")
	}
	kb.Type(p.Text)
	return nil
}

func normalizeModifiers(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, m := range in {
		name, ok := modifierMap[strings.ToLower(m)]
		if !ok {
			return nil, fmt.Errorf("unknown modifier: %s", m)
		}
		out = append(out, name)
	}
	return out, nil
}

func failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
