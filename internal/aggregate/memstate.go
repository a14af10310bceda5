package aggregate

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/roach88/tally/internal/ir"
)

// MemState is an in-memory State.
//
// Writes through the State methods apply immediately. Update stages writes in
// an overlay and merges them only when the callback succeeds, which gives
// all-or-nothing application without copying the whole state per event.
//
// Thread-safety: MemState is guarded by a mutex so readers (e.g. Snapshot from
// a test goroutine) can observe it, but the aggregator expects one writer.
type MemState struct {
	mu   sync.RWMutex
	data memData
}

type memData struct {
	projects      map[ir.Address]ir.Project
	donors        map[ir.Address]ir.Donor
	contributions map[string]ir.Contribution
	milestones    map[ir.Address]map[uint32]ir.Milestone
}

func newMemData() memData {
	return memData{
		projects:      make(map[ir.Address]ir.Project),
		donors:        make(map[ir.Address]ir.Donor),
		contributions: make(map[string]ir.Contribution),
		milestones:    make(map[ir.Address]map[uint32]ir.Milestone),
	}
}

func (d memData) milestone(key ir.MilestoneKey) (ir.Milestone, bool) {
	ms, ok := d.milestones[key.Project][key.Index]
	return ms, ok
}

func (d memData) putMilestone(ms ir.Milestone) {
	byIndex, ok := d.milestones[ms.Project]
	if !ok {
		byIndex = make(map[uint32]ir.Milestone)
		d.milestones[ms.Project] = byIndex
	}
	byIndex[ms.Index] = ms
}

// NewMemState creates an empty in-memory state.
func NewMemState() *MemState {
	return &MemState{data: newMemData()}
}

func cloneDonor(d ir.Donor) ir.Donor {
	d.Projects = slices.Clone(d.Projects)
	return d
}

func (m *MemState) Project(_ context.Context, address ir.Address) (ir.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data.projects[address]
	return p, ok, nil
}

func (m *MemState) PutProject(_ context.Context, p ir.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.projects[p.Address] = p
	return nil
}

func (m *MemState) Donor(_ context.Context, address ir.Address) (ir.Donor, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data.donors[address]
	return cloneDonor(d), ok, nil
}

func (m *MemState) PutDonor(_ context.Context, d ir.Donor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.donors[d.Address] = cloneDonor(d)
	return nil
}

func (m *MemState) Contribution(_ context.Context, eventKey string) (ir.Contribution, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data.contributions[eventKey]
	return c, ok, nil
}

func (m *MemState) PutContribution(_ context.Context, c ir.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.contributions[c.EventKey] = c
	return nil
}

func (m *MemState) Milestone(_ context.Context, key ir.MilestoneKey) (ir.Milestone, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.data.milestone(key)
	return ms, ok, nil
}

func (m *MemState) PutMilestone(_ context.Context, ms ir.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.putMilestone(ms)
	return nil
}

func (m *MemState) Milestones(_ context.Context, project ir.Address) ([]ir.Milestone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return milestonesOf(m.data.milestones, nil, project), nil
}

// Update runs fn against a staged view of the state. Writes become visible
// only if fn returns nil; otherwise they are discarded.
func (m *MemState) Update(fn func(State) error) error {
	tx := &memTx{base: m, pending: newMemData()}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range tx.pending.projects {
		m.data.projects[k] = v
	}
	for k, v := range tx.pending.donors {
		m.data.donors[k] = v
	}
	for k, v := range tx.pending.contributions {
		m.data.contributions[k] = v
	}
	for _, byIndex := range tx.pending.milestones {
		for _, ms := range byIndex {
			m.data.putMilestone(ms)
		}
	}
	return nil
}

// Snapshot returns a sorted copy of the full state.
func (m *MemState) Snapshot() ir.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := ir.Snapshot{
		Projects:      make([]ir.Project, 0, len(m.data.projects)),
		Donors:        make([]ir.Donor, 0, len(m.data.donors)),
		Contributions: make([]ir.Contribution, 0, len(m.data.contributions)),
		Milestones:    make([]ir.Milestone, 0),
	}
	for _, p := range m.data.projects {
		s.Projects = append(s.Projects, p)
	}
	for _, d := range m.data.donors {
		s.Donors = append(s.Donors, cloneDonor(d))
	}
	for _, c := range m.data.contributions {
		s.Contributions = append(s.Contributions, c)
	}
	for _, byIndex := range m.data.milestones {
		for _, ms := range byIndex {
			s.Milestones = append(s.Milestones, ms)
		}
	}
	s.Sort()
	return s
}

// milestonesOf merges base and overlay milestones for one project, ordered by
// index. Only the project's own milestones are visited.
func milestonesOf(base, overlay map[ir.Address]map[uint32]ir.Milestone, project ir.Address) []ir.Milestone {
	fromBase, fromOverlay := base[project], overlay[project]
	out := make([]ir.Milestone, 0, len(fromBase)+len(fromOverlay))
	for idx, ms := range fromBase {
		if _, staged := fromOverlay[idx]; !staged {
			out = append(out, ms)
		}
	}
	for _, ms := range fromOverlay {
		out = append(out, ms)
	}
	slices.SortFunc(out, func(a, b ir.Milestone) int { return cmp.Compare(a.Index, b.Index) })
	return out
}

// memTx is the staging overlay used by MemState.Update.
type memTx struct {
	base    *MemState
	pending memData
}

func (t *memTx) Project(ctx context.Context, address ir.Address) (ir.Project, bool, error) {
	if p, ok := t.pending.projects[address]; ok {
		return p, true, nil
	}
	return t.base.Project(ctx, address)
}

func (t *memTx) PutProject(_ context.Context, p ir.Project) error {
	t.pending.projects[p.Address] = p
	return nil
}

func (t *memTx) Donor(ctx context.Context, address ir.Address) (ir.Donor, bool, error) {
	if d, ok := t.pending.donors[address]; ok {
		return cloneDonor(d), true, nil
	}
	return t.base.Donor(ctx, address)
}

func (t *memTx) PutDonor(_ context.Context, d ir.Donor) error {
	t.pending.donors[d.Address] = cloneDonor(d)
	return nil
}

func (t *memTx) Contribution(ctx context.Context, eventKey string) (ir.Contribution, bool, error) {
	if c, ok := t.pending.contributions[eventKey]; ok {
		return c, true, nil
	}
	return t.base.Contribution(ctx, eventKey)
}

func (t *memTx) PutContribution(_ context.Context, c ir.Contribution) error {
	t.pending.contributions[c.EventKey] = c
	return nil
}

func (t *memTx) Milestone(ctx context.Context, key ir.MilestoneKey) (ir.Milestone, bool, error) {
	if ms, ok := t.pending.milestone(key); ok {
		return ms, true, nil
	}
	return t.base.Milestone(ctx, key)
}

func (t *memTx) PutMilestone(_ context.Context, ms ir.Milestone) error {
	t.pending.putMilestone(ms)
	return nil
}

func (t *memTx) Milestones(_ context.Context, project ir.Address) ([]ir.Milestone, error) {
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	return milestonesOf(t.base.data.milestones, t.pending.milestones, project), nil
}
