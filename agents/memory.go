package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/deepnoodle-ai/crew"
)

// FileMemory is an episodic memory kept in a JSON file. It learns approved
// plans from finished threads and retrieves the ones whose requests share
// the most words with a new request.
type FileMemory struct {
	mu       sync.Mutex
	path     string
	store    crew.CheckpointStore
	examples []crew.EpisodicExample
}

func NewFileMemory(path string, store crew.CheckpointStore) (*FileMemory, error) {
	if store == nil {
		return nil, fmt.Errorf("checkpoint store required")
	}
	m := &FileMemory{path: path, store: store}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read episodic memory: %w", err)
	default:
		if err := json.Unmarshal(data, &m.examples); err != nil {
			return nil, fmt.Errorf("failed to unmarshal episodic memory: %w", err)
		}
	}
	return m, nil
}

// Len returns the number of stored examples.
func (m *FileMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.examples)
}

func (m *FileMemory) GetContext(ctx context.Context, text string, maxExamples int) (*crew.EpisodicContext, error) {
	query := words(text)
	m.mu.Lock()
	var scored []crew.EpisodicExample
	for _, example := range m.examples {
		if score := overlap(query, words(example.Request)); score > 0 {
			example.Score = score
			scored = append(scored, example)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if maxExamples > 0 && len(scored) > maxExamples {
		scored = scored[:maxExamples]
	}
	if len(scored) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString("Plans that worked for similar requests:")
	for _, example := range scored {
		fmt.Fprintf(&sb, "\n\nRequest: %s\nPlan:\n%s", example.Request, example.Plan)
	}
	return &crew.EpisodicContext{Examples: scored, Prompt: sb.String()}, nil
}

// Extract stores the thread's approved plan as an example.
func (m *FileMemory) Extract(ctx context.Context, threadID string) (*crew.ExtractionResult, error) {
	checkpoint, err := m.store.GetLatest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return &crew.ExtractionResult{Summary: "Thread has no conversation yet."}, nil
	}
	state := checkpoint.State
	humans := state.HumanMessages()
	plan := state.LatestAgentText(crew.NodePlanning)
	if !state.PlanApproved || len(humans) == 0 || plan == "" {
		return &crew.ExtractionResult{Summary: "No approved plan to learn from."}, nil
	}
	example := crew.EpisodicExample{Request: humans[0], Plan: plan}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.examples {
		if existing.Request == example.Request && existing.Plan == example.Plan {
			return &crew.ExtractionResult{Summary: "Plan already learned."}, nil
		}
	}
	m.examples = append(m.examples, example)
	if err := m.save(); err != nil {
		m.examples = m.examples[:len(m.examples)-1]
		return nil, err
	}
	return &crew.ExtractionResult{Stored: 1, Summary: "Learned the approved plan."}, nil
}

// save must be called with m.mu held.
func (m *FileMemory) save() error {
	data, err := json.MarshalIndent(m.examples, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal episodic memory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create episodic memory directory: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write episodic memory: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func words(text string) map[string]bool {
	set := map[string]bool{}
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(word) > 2 {
			set[word] = true
		}
	}
	return set
}

// overlap is the Jaccard similarity of two word sets.
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for word := range a {
		if b[word] {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
