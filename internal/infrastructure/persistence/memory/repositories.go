package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// DemandeRepository implements port.DemandeRepository
type DemandeRepository struct{ s *Store }

func (r *DemandeRepository) Create(ctx context.Context, d *entity.Demande) error {
	return r.s.do(ctx, func(st *data) error {
		if _, exists := st.demandes[d.ID]; exists {
			return fmt.Errorf("demande %s already exists", d.ID)
		}
		if d.Number != "" {
			for _, other := range st.demandes {
				if other.Number == d.Number {
					return fmt.Errorf("demande number %s already used", d.Number)
				}
			}
		}
		c := d.Clone()
		c.Items = nil
		st.demandes[d.ID] = c
		return nil
	})
}

func (r *DemandeRepository) GetByID(ctx context.Context, id string) (*entity.Demande, error) {
	var out *entity.Demande
	err := r.s.do(ctx, func(st *data) error {
		out = st.demandes[id].Clone()
		return nil
	})
	return out, err
}

func (r *DemandeRepository) Update(ctx context.Context, d *entity.Demande) error {
	return r.s.do(ctx, func(st *data) error {
		if _, exists := st.demandes[d.ID]; !exists {
			return fmt.Errorf("demande %s not found", d.ID)
		}
		c := d.Clone()
		c.Items = nil
		st.demandes[d.ID] = c
		return nil
	})
}

func (r *DemandeRepository) Delete(ctx context.Context, id string) error {
	return r.s.do(ctx, func(st *data) error {
		delete(st.demandes, id)
		for itemID, item := range st.items {
			if item.DemandeID == id {
				delete(st.items, itemID)
			}
		}
		return nil
	})
}

func (r *DemandeRepository) List(ctx context.Context, filter port.DemandeFilter) ([]*entity.Demande, error) {
	var out []*entity.Demande
	err := r.s.do(ctx, func(st *data) error {
		for _, d := range st.demandes {
			if filter.Status != "" && d.Status != filter.Status {
				continue
			}
			if filter.Type != "" && d.Type != filter.Type {
				continue
			}
			if filter.CreatorID != "" && d.CreatorID != filter.CreatorID {
				continue
			}
			if filter.ProjectID != "" && d.ProjectID != filter.ProjectID {
				continue
			}
			out = append(out, d.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Offset, filter.Limit), err
}

func (r *DemandeRepository) ListStale(ctx context.Context, statuses []workflow.State, before time.Time, limit int) ([]*entity.Demande, error) {
	wanted := make(map[workflow.State]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []*entity.Demande
	err := r.s.do(ctx, func(st *data) error {
		for _, d := range st.demandes {
			if wanted[d.Status] && d.ModifiedAt.Before(before) {
				out = append(out, d.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedAt.Before(out[j].ModifiedAt) })
	return page(out, 0, limit), err
}

func page(list []*entity.Demande, offset, limit int) []*entity.Demande {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

// ItemRepository implements port.ItemRepository
type ItemRepository struct{ s *Store }

func (r *ItemRepository) Create(ctx context.Context, item *entity.DemandeItem) error {
	return r.s.do(ctx, func(st *data) error {
		if _, ok := st.demandes[item.DemandeID]; !ok {
			return fmt.Errorf("demande %s not found", item.DemandeID)
		}
		st.items[item.ID] = item.Clone()
		return nil
	})
}

func (r *ItemRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.DemandeItem, error) {
	var out []*entity.DemandeItem
	err := r.s.do(ctx, func(st *data) error {
		for _, item := range st.items {
			if item.DemandeID == demandeID {
				out = append(out, item.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position == out[j].Position {
			return out[i].ID < out[j].ID
		}
		return out[i].Position < out[j].Position
	})
	return out, err
}

func (r *ItemRepository) Update(ctx context.Context, item *entity.DemandeItem) error {
	return r.s.do(ctx, func(st *data) error {
		if _, ok := st.items[item.ID]; !ok {
			return workflow.NewError(workflow.KindNotFound, "item %s not found", item.ID)
		}
		st.items[item.ID] = item.Clone()
		return nil
	})
}

func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	return r.s.do(ctx, func(st *data) error {
		delete(st.items, id)
		return nil
	})
}

func (r *ItemRepository) IncrementDelivered(ctx context.Context, itemID string, qty int64, at time.Time) error {
	return r.s.do(ctx, func(st *data) error {
		item, ok := st.items[itemID]
		if !ok {
			return workflow.NewError(workflow.KindNotFound, "item %s not found", itemID)
		}
		if item.QuantityDelivered+qty > item.TargetQuantity() {
			return workflow.NewError(workflow.KindOverDelivery, "item %s would exceed %d", itemID, item.TargetQuantity())
		}
		item.QuantityDelivered += qty
		item.UpdatedAt = at
		return nil
	})
}

func (r *ItemRepository) SetUnitPrice(ctx context.Context, itemID string, price decimal.Decimal, at time.Time) error {
	return r.s.do(ctx, func(st *data) error {
		item, ok := st.items[itemID]
		if !ok {
			return workflow.NewError(workflow.KindNotFound, "item %s not found", itemID)
		}
		item.UnitPrice = decimal.NewNullDecimal(price)
		item.UpdatedAt = at
		return nil
	})
}

// DeliveryRepository implements port.DeliveryRepository
type DeliveryRepository struct{ s *Store }

func (r *DeliveryRepository) Create(ctx context.Context, d *entity.Delivery) error {
	return r.s.do(ctx, func(st *data) error {
		c := cloneDelivery(d)
		for i, line := range c.Lines {
			line.ID = st.id()
			d.Lines[i].ID = line.ID
		}
		st.deliveries[d.ID] = c
		return nil
	})
}

func (r *DeliveryRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.Delivery, error) {
	var out []*entity.Delivery
	err := r.s.do(ctx, func(st *data) error {
		for _, d := range st.deliveries {
			if d.DemandeID == demandeID {
				out = append(out, cloneDelivery(d))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r *DeliveryRepository) MarkReceived(ctx context.Context, demandeID, receiverID string, at time.Time) error {
	return r.s.do(ctx, func(st *data) error {
		for _, d := range st.deliveries {
			if d.DemandeID == demandeID && d.Status == entity.DeliveryStatusPrepared {
				received := at
				d.Status = entity.DeliveryStatusReceived
				d.ReceivedAt = &received
				d.ReceivedByID = receiverID
			}
		}
		return nil
	})
}

func cloneDelivery(d *entity.Delivery) *entity.Delivery {
	c := *d
	if d.ReceivedAt != nil {
		at := *d.ReceivedAt
		c.ReceivedAt = &at
	}
	c.Lines = make([]*entity.DeliveryLine, len(d.Lines))
	for i, l := range d.Lines {
		cp := *l
		c.Lines[i] = &cp
	}
	return &c
}

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct{ s *Store }

func (r *HistoryRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	return r.s.do(ctx, func(st *data) error {
		entry.ID = st.id()
		cp := *entry
		st.history = append(st.history, &cp)
		return nil
	})
}

func (r *HistoryRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.HistoryEntry, error) {
	var out []*entity.HistoryEntry
	err := r.s.do(ctx, func(st *data) error {
		for _, h := range st.history {
			if h.DemandeID == demandeID {
				cp := *h
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

// SignatureRepository implements port.SignatureRepository
type SignatureRepository struct{ s *Store }

func (r *SignatureRepository) Create(ctx context.Context, sig *entity.ValidationSignature) error {
	return r.s.do(ctx, func(st *data) error {
		sig.ID = st.id()
		cp := *sig
		st.signatures = append(st.signatures, &cp)
		return nil
	})
}

func (r *SignatureRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.ValidationSignature, error) {
	var out []*entity.ValidationSignature
	err := r.s.do(ctx, func(st *data) error {
		for _, sig := range st.signatures {
			if sig.DemandeID == demandeID {
				cp := *sig
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

// SequenceRepository implements port.SequenceRepository
type SequenceRepository struct{ s *Store }

func (r *SequenceRepository) Next(ctx context.Context, t workflow.RequestType, year int) (int, error) {
	var next int
	err := r.s.do(ctx, func(st *data) error {
		key := seqKey{reqType: t, year: year}
		st.sequences[key]++
		next = st.sequences[key]
		return nil
	})
	return next, err
}

// UserRepository implements port.UserRepository
type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var out *entity.User
	err := r.s.do(ctx, func(st *data) error {
		if u, ok := st.users[id]; ok {
			cp := *u
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r *UserRepository) ListByRole(ctx context.Context, role workflow.Role) ([]*entity.User, error) {
	var out []*entity.User
	err := r.s.do(ctx, func(st *data) error {
		for _, u := range st.users {
			if u.Role == role {
				cp := *u
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *UserRepository) Upsert(ctx context.Context, u *entity.User) error {
	return r.s.do(ctx, func(st *data) error {
		cp := *u
		st.users[u.ID] = &cp
		return nil
	})
}

func (r *UserRepository) List(ctx context.Context) ([]*entity.User, error) {
	var out []*entity.User
	err := r.s.do(ctx, func(st *data) error {
		for _, u := range st.users {
			cp := *u
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

var (
	_ port.DemandeRepository   = (*DemandeRepository)(nil)
	_ port.ItemRepository      = (*ItemRepository)(nil)
	_ port.DeliveryRepository  = (*DeliveryRepository)(nil)
	_ port.HistoryRepository   = (*HistoryRepository)(nil)
	_ port.SignatureRepository = (*SignatureRepository)(nil)
	_ port.SequenceRepository  = (*SequenceRepository)(nil)
	_ port.UserRepository      = (*UserRepository)(nil)
)
