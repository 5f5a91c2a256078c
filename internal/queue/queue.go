// Package queue admits and orders claimable tasks. Ordering is priority
// rank then creation time, with dependency gating done by the store scan.
// Admission runs every candidate against a completed-task index; a likely
// duplicate is rejected with the suspected original recorded in an event,
// never silently dropped.
package queue

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/store"
)

// DuplicateError reports a rejected admission and the completed task it
// appears to duplicate.
type DuplicateError struct {
	MatchedID    string
	MatchedTitle string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("likely duplicate of completed task %s (%q)", e.MatchedID, e.MatchedTitle)
}

// Manager admits tasks and serves the claimable queue.
type Manager struct {
	store    *store.Store
	events   *audit.Writer
	logger   *slog.Logger
	depthMin int
	depthMax int
}

// NewManager creates a queue manager with the target claimable depth range.
func NewManager(s *store.Store, events *audit.Writer, logger *slog.Logger, depthMin, depthMax int) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: s, events: events, logger: logger, depthMin: depthMin, depthMax: depthMax}
}

// Admit creates a task unless it fuzzy-matches a completed one. On a
// duplicate it records an event naming the matched task and returns a
// *DuplicateError; queue depth is unchanged.
func (m *Manager) Admit(actor, title, description string, priority models.Priority, deps, criteria []string) (*models.Task, error) {
	completed, err := m.store.CompletedTitles()
	if err != nil {
		return nil, err
	}
	if id, matched := findDuplicate(title, completed); id != "" {
		m.events.Record(actor, models.EventDuplicateRejected, "", map[string]interface{}{
			"title":         title,
			"matched_id":    id,
			"matched_title": matched,
		})
		m.logger.Info("admission rejected as duplicate", "title", title, "matched_id", id)
		return nil, &DuplicateError{MatchedID: id, MatchedTitle: matched}
	}

	task, err := m.store.CreateTask(title, description, priority, deps, criteria)
	if err != nil {
		return nil, err
	}
	m.events.Record(actor, models.EventTaskCreated, task.ID, map[string]interface{}{
		"title":    title,
		"priority": string(priority),
	})
	return task, nil
}

// Claimable returns up to limit tasks ready to claim, best first.
func (m *Manager) Claimable(limit int) ([]models.Task, error) {
	return m.store.ClaimableTasks(limit)
}

// Depth returns the current claimable queue depth.
func (m *Manager) Depth() (int, error) {
	return m.store.ClaimableDepth()
}

// NeedsAdmission reports whether the queue has fallen below the target.
func (m *Manager) NeedsAdmission() (bool, error) {
	depth, err := m.Depth()
	if err != nil {
		return false, err
	}
	return depth < m.depthMin, nil
}

// AdmissionPaused reports whether the queue is above the target.
func (m *Manager) AdmissionPaused() (bool, error) {
	depth, err := m.Depth()
	if err != nil {
		return false, err
	}
	return depth > m.depthMax, nil
}

// findDuplicate matches a candidate title against completed titles by
// keyword overlap, falling back to a fuzzy subsequence match for reworded
// but near-identical titles. Returns the matched task id, or "".
func findDuplicate(title string, completed map[string]string) (string, string) {
	candidate := keywords(title)
	if len(candidate) == 0 {
		return "", ""
	}

	ids := make([]string, 0, len(completed))
	titles := make([]string, 0, len(completed))
	for id := range completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		titles = append(titles, completed[id])
	}

	bestID, bestTitle, bestScore := "", "", 0.0
	for i, existing := range titles {
		score := overlap(candidate, keywords(existing))
		if score > bestScore {
			bestID, bestTitle, bestScore = ids[i], existing, score
		}
	}
	if bestScore >= 0.75 {
		return bestID, bestTitle
	}

	norm := strings.Join(candidate, " ")
	normalized := make([]string, len(titles))
	for i, t := range titles {
		normalized[i] = strings.Join(keywords(t), " ")
	}
	for _, match := range fuzzy.Find(norm, normalized) {
		// Require the match to cover most of the existing title, not just
		// share a few characters.
		if len(norm)*10 >= len(normalized[match.Index])*8 {
			return ids[match.Index], titles[match.Index]
		}
	}
	return "", ""
}

// keywords lowercases a title and drops words too short to be meaningful.
func keywords(title string) []string {
	fields := strings.Fields(strings.ToLower(title))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,:;!?()[]\"'")
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// overlap returns the share of the smaller keyword set present in the other.
func overlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	common := 0
	for _, w := range b {
		if set[w] {
			common++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(common) / float64(smaller)
}
