// Package skills holds built-in tools the CLI offers to the model. Each skill
// is a structured tool and reaches the model through tools.Wrap.
package skills

import (
	"encoding/json"
	"fmt"
	"sort"

	"lmbridge/internal/tools"
)

// Skill is a structured tool with a typed argument struct as its schema.
type Skill interface {
	tools.StructuredTool
}

// Manager holds the available skills.
type Manager struct {
	skills map[string]Skill
}

func NewManager() *Manager {
	return &Manager{
		skills: make(map[string]Skill),
	}
}

// NewDefaultManager registers shell, file and fetch.
func NewDefaultManager() *Manager {
	m := NewManager()
	m.Register(&ShellSkill{})
	m.Register(&FileSkill{})
	m.Register(&FetchSkill{})
	return m
}

func (m *Manager) Register(s Skill) {
	m.skills[s.Name()] = s
}

func (m *Manager) Get(name string) (Skill, bool) {
	s, ok := m.skills[name]
	return s, ok
}

// List returns the skills sorted by name.
func (m *Manager) List() []Skill {
	list := make([]Skill, 0, len(m.skills))
	for _, s := range m.skills {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Tools wraps every skill for binding to a chat model.
func (m *Manager) Tools() ([]*tools.Tool, error) {
	list := m.List()
	in := make([]any, len(list))
	for i, s := range list {
		in[i] = s
	}
	return tools.WrapAll(in)
}

// decodeArgs copies validated tool input into a typed argument struct.
func decodeArgs(input map[string]any, dst any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
