// Package memory provides an in-process implementation of every repository port.
// Transactions are serialised and roll back by restoring a snapshot.
package memory

import (
	"context"
	"sync"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

type txKey struct{}

type seqKey struct {
	reqType workflow.RequestType
	year    int
}

// data is everything the store holds; it is deep-copied for snapshots
type data struct {
	demandes   map[string]*entity.Demande
	items      map[string]*entity.DemandeItem
	deliveries map[string]*entity.Delivery
	history    []*entity.HistoryEntry
	signatures []*entity.ValidationSignature
	users      map[string]*entity.User
	sequences  map[seqKey]int
	nextID     int64
}

func newData() *data {
	return &data{
		demandes:   make(map[string]*entity.Demande),
		items:      make(map[string]*entity.DemandeItem),
		deliveries: make(map[string]*entity.Delivery),
		users:      make(map[string]*entity.User),
		sequences:  make(map[seqKey]int),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.demandes {
		c.demandes[k] = v.Clone()
	}
	for k, v := range d.items {
		c.items[k] = v.Clone()
	}
	for k, v := range d.deliveries {
		c.deliveries[k] = cloneDelivery(v)
	}
	c.history = make([]*entity.HistoryEntry, len(d.history))
	for i, h := range d.history {
		cp := *h
		c.history[i] = &cp
	}
	c.signatures = make([]*entity.ValidationSignature, len(d.signatures))
	for i, s := range d.signatures {
		cp := *s
		c.signatures[i] = &cp
	}
	for k, v := range d.users {
		cp := *v
		c.users[k] = &cp
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	c.nextID = d.nextID
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// Store is an in-memory persistence backend
type Store struct {
	mu   sync.Mutex
	data *data
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: newData()}
}

// WithTransaction serialises fn against every other store access.
// Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// do runs fn with the store locked unless ctx is already inside a transaction
func (s *Store) do(ctx context.Context, fn func(d *data) error) error {
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.data)
}

// Repositories returns every repository backed by this store
func (s *Store) Repositories() port.Repositories {
	return port.Repositories{
		Demandes:   &DemandeRepository{s},
		Items:      &ItemRepository{s},
		Deliveries: &DeliveryRepository{s},
		History:    &HistoryRepository{s},
		Signatures: &SignatureRepository{s},
		Sequences:  &SequenceRepository{s},
		Users:      &UserRepository{s},
	}
}

var _ port.TransactionManager = (*Store)(nil)
