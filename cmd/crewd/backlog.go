package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/worker"
)

// backlogSource feeds the planner from a static YAML file of proposals, in
// file order. Once exhausted it reports no more work.
type backlogSource struct {
	mu        sync.Mutex
	proposals []worker.Proposal
	next      int
}

type backlogFile struct {
	Tasks []struct {
		Title              string   `yaml:"title"`
		Description        string   `yaml:"description"`
		Priority           string   `yaml:"priority"`
		Dependencies       []string `yaml:"dependencies"`
		AcceptanceCriteria []string `yaml:"acceptance_criteria"`
	} `yaml:"tasks"`
}

func newBacklogSource(path string) (*backlogSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	var file backlogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse backlog: %w", err)
	}

	proposals := make([]worker.Proposal, 0, len(file.Tasks))
	for _, t := range file.Tasks {
		priority := models.Priority(t.Priority)
		if !priority.Valid() {
			priority = models.PriorityMedium
		}
		proposals = append(proposals, worker.Proposal{
			Title:              t.Title,
			Description:        t.Description,
			Priority:           priority,
			Dependencies:       t.Dependencies,
			AcceptanceCriteria: t.AcceptanceCriteria,
		})
	}
	return &backlogSource{proposals: proposals}, nil
}

func (b *backlogSource) Next(_ context.Context) (*worker.Proposal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next >= len(b.proposals) {
		return nil, false
	}
	p := b.proposals[b.next]
	b.next++
	return &p, true
}
