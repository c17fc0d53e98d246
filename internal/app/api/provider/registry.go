package provider

import (
	"fmt"
	"sort"
	"sync"

	"voxmeter/internal/app/errors"
)

// Registry resolves adapters by provider name for each capability.
type Registry struct {
	mu           sync.RWMutex
	transcribers map[string]Transcriber
	translators  map[string]Translator
	detectors    map[string]LanguageDetector
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		transcribers: make(map[string]Transcriber),
		translators:  make(map[string]Translator),
		detectors:    make(map[string]LanguageDetector),
	}
}

func validate(p Provider) (string, error) {
	if p == nil {
		return "", fmt.Errorf("provider cannot be nil")
	}
	name := p.Info().Name
	if name == "" {
		return "", fmt.Errorf("provider name cannot be empty")
	}
	if err := p.ValidateConfiguration(); err != nil {
		return "", fmt.Errorf("provider %s validation failed: %w", name, err)
	}
	return name, nil
}

// RegisterTranscriber adds a transcription adapter under its provider name.
func (r *Registry) RegisterTranscriber(t Transcriber) error {
	name, err := validate(t)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transcribers[name]; exists {
		return fmt.Errorf("transcriber '%s' already registered", name)
	}
	r.transcribers[name] = t
	return nil
}

// RegisterTranslator adds a translation adapter under its provider name.
func (r *Registry) RegisterTranslator(t Translator) error {
	name, err := validate(t)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.translators[name]; exists {
		return fmt.Errorf("translator '%s' already registered", name)
	}
	r.translators[name] = t
	return nil
}

// RegisterDetector adds a language-detection adapter under its provider name.
func (r *Registry) RegisterDetector(d LanguageDetector) error {
	name, err := validate(d)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.detectors[name]; exists {
		return fmt.Errorf("detector '%s' already registered", name)
	}
	r.detectors[name] = d
	return nil
}

// Transcriber returns the transcription adapter for name.
func (r *Registry) Transcriber(name string) (Transcriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transcribers[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrProviderNotFound, "transcriber %q", name)
	}
	return t, nil
}

// Translator returns the translation adapter for name.
func (r *Registry) Translator(name string) (Translator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.translators[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrProviderNotFound, "translator %q", name)
	}
	return t, nil
}

// Detector returns the language-detection adapter for name.
func (r *Registry) Detector(name string) (LanguageDetector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrProviderNotFound, "detector %q", name)
	}
	return d, nil
}

// List returns the sorted provider names registered for capability.
func (r *Registry) List(capability Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch capability {
	case CapabilityTranscribe:
		for name := range r.transcribers {
			names = append(names, name)
		}
	case CapabilityTranslate:
		for name := range r.translators {
			names = append(names, name)
		}
	case CapabilityDetectLanguage:
		for name := range r.detectors {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
