package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conclave-ai/conclave/internal/council"
)

// RosterFile is an on-disk chamber definition. Entries either reference a
// built-in persona by key or define a custom one inline.
type RosterFile struct {
	Councilors []RosterEntry `yaml:"councilors"`
}

// RosterEntry selects or defines one participant.
type RosterEntry struct {
	Persona `yaml:",inline"`

	Disabled bool    `yaml:"disabled,omitempty"`
	Weight   float64 `yaml:"weight,omitempty"`
}

// LoadRoster reads a YAML roster file and resolves it into participants,
// registering any custom or overridden personas along the way. Entries
// with only a key inherit the built-in persona; inline fields override
// it. A speaker is prepended when the file defines none.
func (r *Registry) LoadRoster(path string) ([]council.Participant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: reading roster: %w", err)
	}

	var file RosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("persona: parsing roster %s: %w", path, err)
	}
	if len(file.Councilors) == 0 {
		return nil, fmt.Errorf("persona: roster %s defines no councilors", path)
	}

	hasSpeaker := false
	out := make([]council.Participant, 0, len(file.Councilors)+1)
	for i, entry := range file.Councilors {
		if entry.Key == "" {
			return nil, fmt.Errorf("persona: roster entry %d has no key", i)
		}

		p, ok := builtins[entry.Key]
		if !ok {
			// Custom persona: must be fully defined inline.
			if entry.SystemPrompt == "" {
				return nil, fmt.Errorf("persona: unknown councilor %q with no system prompt", entry.Key)
			}
			p = entry.Persona
		} else {
			if entry.SystemPrompt != "" {
				p.SystemPrompt = entry.SystemPrompt
			}
			if entry.Name != "" {
				p.Name = entry.Name
			}
			if entry.Role != "" {
				p.Role = entry.Role
			}
			if len(entry.Capabilities) > 0 {
				p.Capabilities = entry.Capabilities
			}
		}
		r.Register(p)

		participant := p.Participant()
		participant.Enabled = !entry.Disabled
		participant.Weight = entry.Weight
		if participant.Role == council.RoleSpeaker && participant.Enabled {
			hasSpeaker = true
		}
		out = append(out, participant)
	}

	if !hasSpeaker {
		out = append([]council.Participant{builtins["speaker"].Participant()}, out...)
	}
	return out, nil
}
