// Package config loads INI-style device profiles for the diagnostics
// tooling. Sections and options record their accesses, so a loader can
// report the entries nothing consumed and catch misspelled keys before they
// silently fall back to defaults. The library packages themselves are
// configured with plain structs; this package only feeds them.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"dw3000-go/pkg/uwberr"
)

// Profile is a parsed device profile.
type Profile struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string

	accessedSections map[string]struct{}
}

// Load reads and parses a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, uwberr.Wrap(err, uwberr.ErrConfigValidation,
			fmt.Sprintf("unable to read profile %s", path))
	}
	return LoadString(string(data))
}

// LoadString parses a profile from a string.
func LoadString(data string) (*Profile, error) {
	p := &Profile{
		sections:         make(map[string]*Section),
		accessedSections: make(map[string]struct{}),
	}

	var currentSection string
	var currentOptions map[string]string

	for lineNum, rawLine := range strings.Split(data, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if currentSection != "" {
				p.addSection(currentSection, currentOptions)
			}
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if currentSection == "" {
				return nil, uwberr.New(uwberr.ErrConfigValidation,
					fmt.Sprintf("empty section header at line %d", lineNum+1))
			}
			currentOptions = make(map[string]string)
			continue
		}

		// Options before the first section header have no home.
		if currentSection == "" {
			continue
		}

		// key: value or key = value.
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			kv = strings.SplitN(line, "=", 2)
		}
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		currentOptions[key] = strings.TrimSpace(kv[1])
	}
	if currentSection != "" {
		p.addSection(currentSection, currentOptions)
	}
	return p, nil
}

// addSection stores a section, merging options when the header repeats.
func (p *Profile) addSection(name string, options map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	p.sections[name] = newSection(name, options)
	p.order = append(p.order, name)
}

// GetSection returns a section by name.
func (p *Profile) GetSection(name string) (*Section, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sec, ok := p.sections[name]
	if !ok {
		return nil, uwberr.ConfigSectionError(name)
	}
	p.accessedSections[name] = struct{}{}
	return sec, nil
}

// GetSectionOptional returns a section if present, nil otherwise.
func (p *Profile) GetSectionOptional(name string) *Section {
	p.mu.Lock()
	defer p.mu.Unlock()

	sec, ok := p.sections[name]
	if ok {
		p.accessedSections[name] = struct{}{}
	}
	return sec
}

// HasSection reports whether a section exists.
func (p *Profile) HasSection(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.sections[name]
	return ok
}

// GetSectionNames returns all section names in file order.
func (p *Profile) GetSectionNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]string, len(p.order))
	copy(result, p.order)
	return result
}

// CheckUnusedSections errors when the profile carries sections nothing read.
func (p *Profile) CheckUnusedSections() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unused []string
	for name := range p.sections {
		if _, ok := p.accessedSections[name]; !ok {
			unused = append(unused, name)
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		return uwberr.New(uwberr.ErrConfigValidation,
			fmt.Sprintf("unused sections: %v", unused))
	}
	return nil
}

// CheckUnusedOptions errors when any accessed section carries options
// nothing read.
func (p *Profile) CheckUnusedOptions() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var problems []string
	for name, sec := range p.sections {
		unused := sec.UnusedOptions()
		if len(unused) > 0 {
			problems = append(problems, fmt.Sprintf("[%s]: unused options %v", name, unused))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return uwberr.New(uwberr.ErrConfigValidation, strings.Join(problems, "; "))
	}
	return nil
}
