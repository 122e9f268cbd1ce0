package service

import (
	"context"

	"github.com/taskcore/taskcore/internal/coreerr"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/store"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/types"
)

// KnowledgeService exposes the knowledge-facing operations of spec
// §4.8: createKnowledge, updateKnowledge, deleteKnowledge, addCitations.
type KnowledgeService struct {
	d Deps
}

// CreateKnowledge persists a new Knowledge item inside a single C4
// scope. Knowledge has no secondary indexes of its own (it's excluded
// from the Task dependency DAG, Open Question decision 4), so this
// orchestration is store-write -> cache-invalidate -> emit, without a
// C7 index step.
func (s *KnowledgeService) CreateKnowledge(ctx context.Context, k *types.Knowledge) (*types.Knowledge, error) {
	if k.ID == "" {
		k.ID = mintKnowledgeID()
	}
	for i := range k.Citations {
		if k.Citations[i].ID == "" {
			k.Citations[i].ID = mintCitationID()
		}
	}

	now := s.d.Clock.Now()
	k.Created, k.Updated = now, now

	err := withTx(ctx, s.d, txn.Immediate, func(ctx context.Context, tx store.Tx) error {
		return s.d.Store.CreateKnowledge(ctx, tx, k)
	})
	if err != nil {
		return nil, err
	}

	s.d.Cache.Invalidate(knowledgeCacheKey(k.ID))
	s.emit(ctx, eventbus.EventKnowledgeCreated, k)
	return k, nil
}

// UpdateKnowledge persists changes to an existing Knowledge item.
func (s *KnowledgeService) UpdateKnowledge(ctx context.Context, k *types.Knowledge) (*types.Knowledge, error) {
	k.Updated = s.d.Clock.Now()

	err := withTx(ctx, s.d, txn.Immediate, func(ctx context.Context, tx store.Tx) error {
		return s.d.Store.UpdateKnowledge(ctx, tx, k)
	})
	if err != nil {
		return nil, err
	}

	s.d.Cache.Invalidate(knowledgeCacheKey(k.ID))
	s.emit(ctx, eventbus.EventKnowledgeUpdated, k)
	return k, nil
}

// DeleteKnowledge removes a Knowledge item and its citations.
func (s *KnowledgeService) DeleteKnowledge(ctx context.Context, id string) error {
	err := withTx(ctx, s.d, txn.Immediate, func(ctx context.Context, tx store.Tx) error {
		return s.d.Store.DeleteKnowledge(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.d.Cache.Invalidate(knowledgeCacheKey(id))
	_, _ = s.d.Bus.Dispatch(ctx, &eventbus.Event{
		Type:      eventbus.EventKnowledgeDeleted,
		EntityID:  id,
		Timestamp: s.d.Clock.Now(),
	})
	return nil
}

// GetKnowledge resolves a Knowledge item by id, consulting the cache
// first.
func (s *KnowledgeService) GetKnowledge(ctx context.Context, id string) (*types.Knowledge, error) {
	key := knowledgeCacheKey(id)
	if v, _, ok := s.d.Cache.Get(key); ok {
		return v.(*types.Knowledge), nil
	}
	k, err := s.d.Store.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}
	s.d.Cache.Set(key, k, 0)
	return k, nil
}

// AddCitations appends citations to an existing Knowledge item,
// spec §3.1's `add_citations` operation on what's otherwise an
// attribute of Knowledge.
func (s *KnowledgeService) AddCitations(ctx context.Context, knowledgeID string, citations []types.Citation) (*types.Knowledge, error) {
	k, err := s.GetKnowledge(ctx, knowledgeID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindNotFound, err, "knowledge not found")
	}
	for _, c := range citations {
		if c.ID == "" {
			c.ID = mintCitationID()
		}
		if c.Created == 0 {
			c.Created = s.d.Clock.Now()
		}
		k.Citations = append(k.Citations, c)
	}
	return s.UpdateKnowledge(ctx, k)
}

func (s *KnowledgeService) emit(ctx context.Context, et eventbus.EventType, k *types.Knowledge) {
	_, _ = s.d.Bus.Dispatch(ctx, &eventbus.Event{
		Type:      et,
		EntityID:  k.ID,
		Timestamp: s.d.Clock.Now(),
	})
}

func knowledgeCacheKey(id string) string {
	key, _ := cacheFingerprint("knowledge", id)
	return key
}
