// Package script replays editor gestures from a YAML file.
//
// A script seeds a canvas and lists steps. Each step names an action and
// carries its arguments inline:
//
//	debounce: 200ms
//	graph:
//	  nodes: [{id: start, type: start}]
//	steps:
//	  - action: add_node
//	    id: llm
//	    type: llm
//	  - action: wait
//	    for: 300ms
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/editor"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ErrUnknownAction is returned for a step whose action is not supported.
var ErrUnknownAction = errors.New("unknown action")

// Script is a parsed replay file.
type Script struct {
	Debounce time.Duration `yaml:"debounce"`
	Graph    domain.Graph  `yaml:"graph"`
	Steps    []Step        `yaml:"steps"`
}

// Step is one gesture with its raw arguments.
type Step struct {
	Action string         `yaml:"action"`
	Args   map[string]any `yaml:",inline"`
}

// Parse decodes a script.
func Parse(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, step := range s.Steps {
		if step.Action == "" {
			return nil, fmt.Errorf("step %d: missing action", i+1)
		}
	}
	return &s, nil
}

// ParseFile reads and decodes a script file.
func ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

type nodeArgs struct {
	ID    string         `mapstructure:"id"`
	Type  string         `mapstructure:"type"`
	X     float64        `mapstructure:"x"`
	Y     float64        `mapstructure:"y"`
	Title string         `mapstructure:"title"`
	Desc  string         `mapstructure:"desc"`
	Data  map[string]any `mapstructure:"data"`
}

type idArgs struct {
	ID string `mapstructure:"id"`
}

type pasteArgs struct {
	IDs []string `mapstructure:"ids"`
}

type dragArgs struct {
	ID    string  `mapstructure:"id"`
	DX    float64 `mapstructure:"dx"`
	DY    float64 `mapstructure:"dy"`
	Steps int     `mapstructure:"steps"`
}

type textArgs struct {
	ID    string `mapstructure:"id"`
	Title string `mapstructure:"title"`
	Desc  string `mapstructure:"desc"`
}

type updateArgs struct {
	ID   string         `mapstructure:"id"`
	Data map[string]any `mapstructure:"data"`
}

type connectArgs struct {
	ID           string `mapstructure:"id"`
	Source       string `mapstructure:"source"`
	Target       string `mapstructure:"target"`
	SourceHandle string `mapstructure:"source_handle"`
	TargetHandle string `mapstructure:"target_handle"`
}

type branchArgs struct {
	ID     string `mapstructure:"id"`
	Handle string `mapstructure:"handle"`
}

type recordArgs struct {
	Event string `mapstructure:"event"`
}

type waitArgs struct {
	For time.Duration `mapstructure:"for"`
}

func decode(args map[string]any, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

// Player applies script steps to an editor.
type Player struct {
	Editor *editor.Editor

	// Wait lets time pass for wait steps. Defaults to sleeping.
	Wait func(ctx context.Context, d time.Duration) error

	// OnStep, when set, is called after each applied step.
	OnStep func(i int, step Step)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play applies every step in order and stops at the first failure.
func (p *Player) Play(ctx context.Context, s *Script) error {
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.apply(ctx, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		if p.OnStep != nil {
			p.OnStep(i, step)
		}
	}
	return nil
}

func (p *Player) apply(ctx context.Context, step Step) error {
	ed := p.Editor
	switch step.Action {
	case "add_node":
		var a nodeArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		data := a.Data
		if data == nil {
			data = make(map[string]any)
		}
		if a.Title != "" {
			data[domain.KeyTitle] = a.Title
		}
		if a.Desc != "" {
			data[domain.KeyDesc] = a.Desc
		}
		_, err := ed.AddNode(domain.Node{
			ID:       a.ID,
			Type:     a.Type,
			Position: domain.Position{X: a.X, Y: a.Y},
			Data:     data,
		})
		return err

	case "paste":
		var a pasteArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		_, err := ed.Paste(ctx, a.IDs...)
		return err

	case "drag":
		var a dragArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		n := max(a.Steps, 1)
		for i := 0; i < n; i++ {
			if err := ed.Drag(a.ID, a.DX/float64(n), a.DY/float64(n)); err != nil {
				return err
			}
		}
		return ed.DragStop(a.ID)

	case "set_title":
		var a textArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		return ed.SetTitle(a.ID, a.Title)

	case "set_description":
		var a textArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		return ed.SetDescription(a.ID, a.Desc)

	case "update":
		var a updateArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		return ed.UpdateData(a.ID, a.Data)

	case "connect":
		var a connectArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		_, err := ed.Connect(domain.Edge{
			ID:           a.ID,
			Source:       a.Source,
			Target:       a.Target,
			SourceHandle: a.SourceHandle,
			TargetHandle: a.TargetHandle,
		})
		return err

	case "delete_node":
		var a idArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		return ed.DeleteNode(a.ID)

	case "delete_edge":
		var a idArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		return ed.DeleteEdge(a.ID)

	case "delete_branch":
		var a branchArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		_, err := ed.DeleteBranch(a.ID, a.Handle)
		return err

	case "select":
		var a idArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		return ed.Select(a.ID)

	case "record":
		var a recordArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		ed.Record(domain.EventKind(a.Event))
		return nil

	case "undo":
		_, err := ed.Undo(ctx)
		return err

	case "redo":
		_, err := ed.Redo(ctx)
		return err

	case "flush":
		ed.Flush()
		return nil

	case "wait":
		var a waitArgs
		if err := decode(step.Args, &a); err != nil {
			return err
		}
		wait := p.Wait
		if wait == nil {
			wait = Sleep
		}
		return wait(ctx, a.For)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, step.Action)
	}
}
