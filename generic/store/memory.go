// Package store holds in-process implementations of generic.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/eaziwage/advance-engine/generic"
)

// Memory is an in-process advance ledger keyed by employee and cycle.
// Writes made inside WithTx are staged and only reach the journal when fn
// returns nil.
type Memory struct {
	mu      sync.Mutex
	journal map[cycleKey][]generic.Transaction
	keys    map[string]struct{}
}

type cycleKey struct {
	entity generic.EntityID
	cycle  generic.CycleID
}

func NewMemory() *Memory {
	return &Memory{
		journal: make(map[cycleKey][]generic.Transaction),
		keys:    make(map[string]struct{}),
	}
}

func (m *Memory) Append(ctx context.Context, tx generic.Transaction) error {
	return m.AppendBatch(ctx, []generic.Transaction{tx})
}

// AppendBatch writes every transaction or none of them.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkKeys(txs, nil); err != nil {
		return err
	}
	m.commit(txs)
	return nil
}

func (m *Memory) Load(_ context.Context, entityID generic.EntityID, cycleID generic.CycleID) ([]generic.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(cycleKey{entityID, cycleID}, nil), nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[idempotencyKey]
	return ok, nil
}

// WithTx runs fn against a staging view. The lock is held for the whole of
// fn, so transactions are serialised the way the SQLite store serialises them.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &staging{mem: m}
	if err := fn(st); err != nil {
		return err
	}
	m.commit(st.pending)
	return nil
}

// checkKeys rejects a batch whose keys repeat inside itself, in the journal
// or among writes already staged.
func (m *Memory) checkKeys(txs, staged []generic.Transaction) error {
	batch := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		k := tx.IdempotencyKey
		if k == "" {
			continue
		}
		if _, ok := m.keys[k]; ok {
			return generic.ErrDuplicateIdempotencyKey
		}
		if _, ok := batch[k]; ok {
			return generic.ErrDuplicateIdempotencyKey
		}
		for _, p := range staged {
			if p.IdempotencyKey == k {
				return generic.ErrDuplicateIdempotencyKey
			}
		}
		batch[k] = struct{}{}
	}
	return nil
}

func (m *Memory) commit(txs []generic.Transaction) {
	for _, tx := range txs {
		k := cycleKey{tx.EntityID, tx.CycleID}
		m.journal[k] = append(m.journal[k], tx)
		sortByEffective(m.journal[k])
		if tx.IdempotencyKey != "" {
			m.keys[tx.IdempotencyKey] = struct{}{}
		}
	}
}

func (m *Memory) load(k cycleKey, staged []generic.Transaction) []generic.Transaction {
	out := append([]generic.Transaction{}, m.journal[k]...)
	for _, tx := range staged {
		if tx.EntityID == k.entity && tx.CycleID == k.cycle {
			out = append(out, tx)
		}
	}
	sortByEffective(out)
	return out
}

// sortByEffective orders by EffectiveAt; ties keep insertion order.
func sortByEffective(txs []generic.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].EffectiveAt.Before(txs[j].EffectiveAt)
	})
}

// staging is the Store handed to WithTx. It runs under the parent's lock.
type staging struct {
	mem     *Memory
	pending []generic.Transaction
}

func (s *staging) Append(ctx context.Context, tx generic.Transaction) error {
	return s.AppendBatch(ctx, []generic.Transaction{tx})
}

func (s *staging) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	if err := s.mem.checkKeys(txs, s.pending); err != nil {
		return err
	}
	s.pending = append(s.pending, txs...)
	return nil
}

func (s *staging) Load(_ context.Context, entityID generic.EntityID, cycleID generic.CycleID) ([]generic.Transaction, error) {
	return s.mem.load(cycleKey{entityID, cycleID}, s.pending), nil
}

func (s *staging) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	if _, ok := s.mem.keys[idempotencyKey]; ok {
		return true, nil
	}
	for _, p := range s.pending {
		if p.IdempotencyKey == idempotencyKey {
			return true, nil
		}
	}
	return false, nil
}

var _ generic.TxStore = (*Memory)(nil)
