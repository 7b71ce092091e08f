// Package persona holds the council's voice definitions: the system
// prompt, role, and capabilities of each participant archetype, plus
// roster files that select and tune them per deployment.
package persona

import (
	"fmt"
	"sort"

	"github.com/conclave-ai/conclave/internal/council"
)

// Persona is one councilor archetype.
type Persona struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	SystemPrompt string   `yaml:"systemPrompt" json:"systemPrompt"`
	Role         string   `yaml:"role" json:"role"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// builtins is the full chamber. The speaker frames and synthesizes;
// everyone else deliberates.
var builtins = map[string]Persona{
	"speaker": {
		Key: "speaker", Name: "Speaker", Role: string(council.RoleSpeaker),
		SystemPrompt: "You are the Speaker - a balanced, wise facilitator who synthesizes perspectives.",
	},
	"technocrat": {
		Key: "technocrat", Name: "Technocrat", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Technocrat - analytical, data-driven, focused on technical feasibility.",
	},
	"ethicist": {
		Key: "ethicist", Name: "Ethicist", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Ethicist - concerned with moral implications and ethical boundaries.",
	},
	"pragmatist": {
		Key: "pragmatist", Name: "Pragmatist", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Pragmatist - focused on practical implementation and real-world constraints.",
	},
	"visionary": {
		Key: "visionary", Name: "Visionary", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Visionary - imaginative, forward-thinking, sees long-term possibilities.",
	},
	"skeptic": {
		Key: "skeptic", Name: "Skeptic", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Skeptic - challenges assumptions, demands evidence, identifies risks.",
	},
	"sentinel": {
		Key: "sentinel", Name: "Sentinel", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Sentinel - guards against harm, prioritizes safety and security.",
	},
	"moderator": {
		Key: "moderator", Name: "Moderator", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Moderator - keeps discussion balanced, ensures all voices are heard.",
	},
	"historian": {
		Key: "historian", Name: "Historian", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Historian - provides historical context and pattern recognition.",
	},
	"diplomat": {
		Key: "diplomat", Name: "Diplomat", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Diplomat - seeks consensus, mediates conflicts, builds bridges.",
	},
	"journalist": {
		Key: "journalist", Name: "Journalist", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Journalist - asks probing questions, seeks clarity and truth.",
	},
	"psychologist": {
		Key: "psychologist", Name: "Psychologist", Role: string(council.RoleCouncilor),
		SystemPrompt: "You are the Psychologist - understands human behavior and cognitive biases.",
	},
}

// Lookup returns the built-in persona for a key.
func Lookup(key string) (Persona, bool) {
	p, ok := builtins[key]
	return p, ok
}

// Registry resolves persona keys to their definitions. It starts seeded
// with the built-in chamber; roster files may add or override entries.
type Registry struct {
	personas map[string]Persona
}

// NewRegistry creates a registry holding the built-in personas.
func NewRegistry() *Registry {
	r := &Registry{personas: make(map[string]Persona, len(builtins))}
	for k, p := range builtins {
		r.personas[k] = p
	}
	return r
}

// Register adds or replaces a persona.
func (r *Registry) Register(p Persona) {
	r.personas[p.Key] = p
}

// Get returns the persona for a key.
func (r *Registry) Get(key string) (Persona, bool) {
	p, ok := r.personas[key]
	return p, ok
}

// Prompt returns the system prompt for a key, falling back to the
// speaker's prompt for unknown keys.
func (r *Registry) Prompt(key string) string {
	if p, ok := r.personas[key]; ok {
		return p.SystemPrompt
	}
	return r.personas["speaker"].SystemPrompt
}

// Keys returns all built-in persona keys, sorted.
func Keys() []string {
	out := make([]string, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Participant converts a persona into a roster entry.
func (p Persona) Participant() council.Participant {
	role := council.Role(p.Role)
	if role == "" {
		role = council.RoleCouncilor
	}
	return council.Participant{
		ID:           p.Key,
		Persona:      p.Key,
		Role:         role,
		Enabled:      true,
		Capabilities: append([]string(nil), p.Capabilities...),
	}
}

// Roster resolves persona keys into session participants. Unknown keys
// are an error; the speaker is prepended when absent so every session
// has a framing voice.
func Roster(keys []string) ([]council.Participant, error) {
	if len(keys) == 0 {
		return DefaultRoster(), nil
	}

	hasSpeaker := false
	out := make([]council.Participant, 0, len(keys)+1)
	for _, key := range keys {
		p, ok := builtins[key]
		if !ok {
			return nil, fmt.Errorf("persona: unknown councilor %q", key)
		}
		if p.Role == string(council.RoleSpeaker) {
			hasSpeaker = true
		}
		out = append(out, p.Participant())
	}

	if !hasSpeaker {
		out = append([]council.Participant{builtins["speaker"].Participant()}, out...)
	}
	return out, nil
}

// DefaultRoster is the chamber convened when no councilors are named.
func DefaultRoster() []council.Participant {
	var out []council.Participant
	for _, key := range []string{"speaker", "technocrat", "ethicist"} {
		out = append(out, builtins[key].Participant())
	}
	return out
}
