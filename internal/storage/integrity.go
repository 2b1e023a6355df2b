package storage

import (
	"context"
	"fmt"

	apierrors "github.com/datadesk/datadesk/internal/errors"
	"github.com/datadesk/datadesk/internal/models"
)

// inboundEdge is a relation field in some dataset pointing at a target
// dataset. Deleting a record of the target dataset has to consider every
// inbound edge: cascade edges pull the referencing records into the
// delete, prevent edges veto it.
type inboundEdge struct {
	SourceDataset string
	FieldKey      string
	Behavior      models.DeleteBehavior
}

// inboundEdges returns the relation edges pointing at targetDatasetID.
func (s *RecordService) inboundEdges(targetDatasetID string) []inboundEdge {
	var edges []inboundEdge
	for ds := range s.fs.Catalog().All() {
		for _, f := range ds.RelationFields() {
			if f.RelatedDataset == targetDatasetID {
				edges = append(edges, inboundEdge{
					SourceDataset: ds.ID,
					FieldKey:      f.Key,
					Behavior:      f.DeleteBehavior,
				})
			}
		}
	}
	return edges
}

// lockSet computes the datasets a delete starting in datasetID may touch:
// the transitive closure over inbound relation edges. Prevent edges are
// included too since their tables are read during planning.
func (s *RecordService) lockSet(datasetID string) []string {
	seen := map[string]bool{datasetID: true}
	queue := []string{datasetID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range s.inboundEdges(cur) {
			if !seen[e.SourceDataset] {
				seen[e.SourceDataset] = true
				queue = append(queue, e.SourceDataset)
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// deletePlan accumulates the records to remove, grouped by dataset.
type deletePlan struct {
	visited  map[string]bool     // record id -> already planned
	byOwner  map[string][]string // dataset id -> record ids
	datasets []string            // owner insertion order, for stable commits
}

func newDeletePlan() *deletePlan {
	return &deletePlan{visited: map[string]bool{}, byOwner: map[string][]string{}}
}

func (p *deletePlan) add(datasetID, recordID string) {
	if _, ok := p.byOwner[datasetID]; !ok {
		p.datasets = append(p.datasets, datasetID)
	}
	p.visited[recordID] = true
	p.byOwner[datasetID] = append(p.byOwner[datasetID], recordID)
}

// Delete removes a record and, transitively, every record cascading onto
// it. The whole plan is computed before any mutation happens: if any
// referencing field is configured to prevent deletion and its record is
// not itself part of the cascade, nothing is deleted.
func (s *RecordService) Delete(ctx context.Context, id string) error {
	datasetID, ok := s.fs.OwnerOf(id)
	if !ok {
		return apierrors.RecordNotFound(id)
	}

	unlock := s.locks.LockAll(s.lockSet(datasetID))
	defer unlock()

	table, err := s.fs.Records(datasetID)
	if err != nil {
		return apierrors.InternalWithError("failed to open records", err)
	}
	if !table.Has(id) {
		return apierrors.RecordNotFound(id)
	}

	plan := newDeletePlan()
	plan.add(datasetID, id)
	if err := s.expandCascades(plan); err != nil {
		return err
	}
	if err := s.checkPrevents(plan); err != nil {
		return err
	}

	for _, owner := range plan.datasets {
		t, err := s.fs.Records(owner)
		if err != nil {
			return apierrors.InternalWithError("failed to open records", err)
		}
		if err := t.DeleteMany(plan.byOwner[owner]); err != nil {
			return apierrors.InternalWithError("failed to delete records", err)
		}
		s.fs.UnindexRecords(plan.byOwner[owner]...)
	}

	s.commit(ctx, fmt.Sprintf("delete: record %s in dataset %s (%d total)", id, datasetID, len(plan.visited)))
	return nil
}

// expandCascades grows the plan to the closure over cascade edges. The
// visited set keeps relation cycles terminating. Prevent edges are
// handled in a second pass so that a record due for cascade deletion can
// never veto the delete through a prevent edge of its own.
func (s *RecordService) expandCascades(plan *deletePlan) error {
	type item struct{ dataset, record string }
	queue := make([]item, 0, len(plan.visited))
	for _, owner := range plan.datasets {
		for _, id := range plan.byOwner[owner] {
			queue = append(queue, item{owner, id})
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range s.inboundEdges(cur.dataset) {
			if e.Behavior != models.CascadeDeleteIfReferenced {
				continue
			}
			t, err := s.fs.Records(e.SourceDataset)
			if err != nil {
				return apierrors.InternalWithError("failed to open records", err)
			}
			for rec := range t.All() {
				ref, _ := rec.Data[e.FieldKey].(string)
				if ref != cur.record || plan.visited[rec.ID] {
					continue
				}
				plan.add(e.SourceDataset, rec.ID)
				queue = append(queue, item{e.SourceDataset, rec.ID})
			}
		}
	}
	return nil
}

// checkPrevents vetoes the plan if any planned record is referenced
// through a prevent edge by a record that is not itself planned.
func (s *RecordService) checkPrevents(plan *deletePlan) error {
	for _, owner := range plan.datasets {
		for _, e := range s.inboundEdges(owner) {
			if e.Behavior != models.PreventDeleteIfReferenced {
				continue
			}
			t, err := s.fs.Records(e.SourceDataset)
			if err != nil {
				return apierrors.InternalWithError("failed to open records", err)
			}
			planned := make(map[string]bool, len(plan.byOwner[owner]))
			for _, id := range plan.byOwner[owner] {
				planned[id] = true
			}
			for rec := range t.All() {
				if plan.visited[rec.ID] {
					continue
				}
				ref, _ := rec.Data[e.FieldKey].(string)
				if planned[ref] {
					return apierrors.ReferentialIntegrity(fmt.Sprintf("cannot delete record %q", ref)).
						WithDetail("dataset", e.SourceDataset).
						WithDetail("field", e.FieldKey)
				}
			}
		}
	}
	return nil
}
