package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vastrakart/vastra/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
//
// Composite values (items, addresses, gateway metadata, return history) are
// stored as JSONB; state flags live in typed columns so they stay queryable.
// Every mutating statement carries its precondition in the WHERE clause and
// bumps the version column, so concurrent writers never overwrite each other.
type OrderStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that OrderStore implements domain.OrderStore.
var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates a new PostgreSQL-backed order store.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, user_id, items, shipping_address, notes,
	payment_method, payment_status, order_status,
	subtotal, shipping_charges, tax, total,
	payment, shiprocket, shipment_pending, shipment_attempts,
	return_status, return_type, return_awb, return_pickup_state,
	return_history, return_resolved_at, refund_info, replacement_order_id,
	version, created_at, updated_at`

// Create inserts a new order row.
func (s *OrderStore) Create(ctx context.Context, o *domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to encode items")
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to encode address")
	}
	history, err := json.Marshal(o.ReturnHistory)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to encode return history")
	}
	if o.ReturnHistory == nil {
		history = []byte("[]")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (
			id, user_id, items, shipping_address,
			payment_method, payment_status, order_status,
			subtotal, shipping_charges, tax, total,
			shipment_pending, return_status, return_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING version, created_at, updated_at`,
		o.ID, o.UserID, items, addr,
		o.PaymentMethod, o.PaymentStatus, o.OrderStatus,
		o.Subtotal, o.ShippingCharges, o.Tax, o.Total,
		o.ShipmentPending, o.ReturnStatus, history,
	)
	if err := row.Scan(&o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Internal(err, "order.create", "failed to insert order")
	}
	return nil
}

// Get retrieves an order by id.
func (s *OrderStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, "order.get", "failed to get order")
	}
	return o, nil
}

// List returns orders that are paid or COD, newest first.
func (s *OrderStore) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE payment_status = 'paid' OR payment_method = 'COD'
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, domain.Internal(err, "order.list", "failed to list orders")
	}
	defer rows.Close()

	return collectOrders(rows, "order.list")
}

// ListByUser returns a customer's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, domain.Internal(err, "order.list_by_user", "failed to list orders")
	}
	defer rows.Close()

	return collectOrders(rows, "order.list_by_user")
}

// FindByReturnAWB locates the order owning a return-pickup waybill.
func (s *OrderStore) FindByReturnAWB(ctx context.Context, awb string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE return_awb = $1`, awb)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, "order.find_by_return_awb", "failed to find order")
	}
	return o, nil
}

// UpdateStatus moves order_status from exactly `from` to `to`.
func (s *OrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET order_status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND order_status = $2`,
		id, from, to)
	if err != nil {
		return false, domain.Internal(err, "order.update_status", "failed to update status")
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaid transitions payment_status pending->paid at most once.
func (s *OrderStore) MarkPaid(ctx context.Context, id uuid.UUID, info domain.PaymentInfo) (bool, error) {
	payment, err := json.Marshal(info)
	if err != nil {
		return false, domain.Internal(err, "order.mark_paid", "failed to encode payment info")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'paid', payment = $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`,
		id, payment)
	if err != nil {
		return false, domain.Internal(err, "order.mark_paid", "failed to mark paid")
	}
	return tag.RowsAffected() == 1, nil
}

// SetShipment stores shipment metadata while the order has none yet.
func (s *OrderStore) SetShipment(ctx context.Context, id uuid.UUID, info domain.ShipmentInfo) (bool, error) {
	shiprocket, err := json.Marshal(info)
	if err != nil {
		return false, domain.Internal(err, "order.set_shipment", "failed to encode shipment info")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET shiprocket = $2, shipment_pending = FALSE, version = version + 1, updated_at = now()
		WHERE id = $1 AND shiprocket IS NULL`,
		id, shiprocket)
	if err != nil {
		return false, domain.Internal(err, "order.set_shipment", "failed to set shipment")
	}
	return tag.RowsAffected() == 1, nil
}

// SetShipmentPending flags or clears the shipment retry marker.
func (s *OrderStore) SetShipmentPending(ctx context.Context, id uuid.UUID, pending bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET shipment_pending = $2, version = version + 1, updated_at = now()
		WHERE id = $1`,
		id, pending)
	if err != nil {
		return domain.Internal(err, "order.set_shipment_pending", "failed to update flag")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// ClaimPendingShipments returns up to limit orders flagged for shipment
// retry, incrementing their attempt counter. SKIP LOCKED keeps concurrent
// workers from claiming the same rows.
func (s *OrderStore) ClaimPendingShipments(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE orders
		SET shipment_attempts = shipment_attempts + 1, version = version + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM orders
			WHERE shipment_pending AND shiprocket IS NULL AND order_status = 'processing'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+orderColumns,
		limit)
	if err != nil {
		return nil, domain.Internal(err, "order.claim_pending_shipments", "failed to claim orders")
	}
	defer rows.Close()

	return collectOrders(rows, "order.claim_pending_shipments")
}

// UpdateAddress replaces the shipping address and, when notes is non-nil,
// the order notes.
func (s *OrderStore) UpdateAddress(ctx context.Context, id uuid.UUID, addr domain.ShippingAddress, notes *string) error {
	encoded, err := json.Marshal(addr)
	if err != nil {
		return domain.Internal(err, "order.update_address", "failed to encode address")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET shipping_address = $2, notes = COALESCE($3, notes),
		    version = version + 1, updated_at = now()
		WHERE id = $1`,
		id, encoded, notes)
	if err != nil {
		return domain.Internal(err, "order.update_address", "failed to update address")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// Delete removes an order row.
func (s *OrderStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return domain.Internal(err, "order.delete", "failed to delete order")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// RequestReturn records a customer return request while return_status is none.
func (s *OrderStore) RequestReturn(ctx context.Context, id uuid.UUID, rt domain.ReturnType, ev domain.ReturnEvent) (bool, error) {
	entry, err := marshalEvent(ev, "order.request_return")
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_status = 'requested', return_type = $2,
		    return_history = return_history || $3::jsonb,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND return_status = 'none'`,
		id, rt, entry)
	if err != nil {
		return false, domain.Internal(err, "order.request_return", "failed to request return")
	}
	return tag.RowsAffected() == 1, nil
}

// ResolveReturnRequest moves return_status requested->approved or
// requested->rejected. Approval stores the reverse-pickup waybill and marks
// the pickup scheduled.
func (s *OrderStore) ResolveReturnRequest(ctx context.Context, id uuid.UUID, to domain.ReturnStatus, awb string, ev domain.ReturnEvent) (bool, error) {
	if to != domain.ReturnStatusApproved && to != domain.ReturnStatusRejected {
		return false, domain.ErrInvalidStatus
	}

	entry, err := marshalEvent(ev, "order.resolve_return")
	if err != nil {
		return false, err
	}

	pickupState := ""
	if to == domain.ReturnStatusApproved {
		pickupState = string(domain.ReturnPickupScheduled)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_status = $2, return_awb = $3, return_pickup_state = $4,
		    return_history = return_history || $5::jsonb,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND return_status = 'requested'`,
		id, to, awb, pickupState, entry)
	if err != nil {
		return false, domain.Internal(err, "order.resolve_return", "failed to resolve return")
	}
	return tag.RowsAffected() == 1, nil
}

// SetReturnPickupState records carrier progress on the reverse pickup.
func (s *OrderStore) SetReturnPickupState(ctx context.Context, id uuid.UUID, state domain.ReturnPickupState, ev domain.ReturnEvent) error {
	entry, err := marshalEvent(ev, "order.set_return_pickup_state")
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_pickup_state = $2,
		    return_history = return_history || $3::jsonb,
		    version = version + 1, updated_at = now()
		WHERE id = $1`,
		id, state, entry)
	if err != nil {
		return domain.Internal(err, "order.set_return_pickup_state", "failed to update pickup state")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// ClaimReturnCompletion moves return_status approved->completing. At most
// one of several concurrent webhook deliveries wins this update.
func (s *OrderStore) ClaimReturnCompletion(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_status = 'completing', version = version + 1, updated_at = now()
		WHERE id = $1 AND return_status = 'approved'`,
		id)
	if err != nil {
		return false, domain.Internal(err, "order.claim_return_completion", "failed to claim return")
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseReturnCompletion hands a completion claim back after a failed
// refund or replacement so the next delivery can retry.
func (s *OrderStore) ReleaseReturnCompletion(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_status = 'approved', version = version + 1, updated_at = now()
		WHERE id = $1 AND return_status = 'completing'`,
		id)
	if err != nil {
		return domain.Internal(err, "order.release_return_completion", "failed to release claim")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// CompleteReturn stamps the terminal return state. Only the delivery
// holding the completion claim can apply it.
func (s *OrderStore) CompleteReturn(ctx context.Context, id uuid.UUID, refund *domain.RefundInfo, replacementID *uuid.UUID, ev domain.ReturnEvent) (bool, error) {
	entry, err := marshalEvent(ev, "order.complete_return")
	if err != nil {
		return false, err
	}

	var refundJSON []byte
	if refund != nil {
		refundJSON, err = json.Marshal(refund)
		if err != nil {
			return false, domain.Internal(err, "order.complete_return", "failed to encode refund info")
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_status = 'completed', return_resolved_at = now(),
		    refund_info = COALESCE($2, refund_info),
		    replacement_order_id = COALESCE($3, replacement_order_id),
		    return_history = return_history || $4::jsonb,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND return_status = 'completing'`,
		id, refundJSON, replacementID, entry)
	if err != nil {
		return false, domain.Internal(err, "order.complete_return", "failed to complete return")
	}
	return tag.RowsAffected() == 1, nil
}

// marshalEvent encodes a single audit event as a one-element JSON array so it
// can be appended to return_history with the || operator.
func marshalEvent(ev domain.ReturnEvent, op string) ([]byte, error) {
	entry, err := json.Marshal([]domain.ReturnEvent{ev})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode return event")
	}
	return entry, nil
}

// scanOrder reads one row in orderColumns order.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o          domain.Order
		items      []byte
		addr       []byte
		payment    []byte
		shiprocket []byte
		history    []byte
		refund     []byte
	)

	err := row.Scan(
		&o.ID, &o.UserID, &items, &addr, &o.Notes,
		&o.PaymentMethod, &o.PaymentStatus, &o.OrderStatus,
		&o.Subtotal, &o.ShippingCharges, &o.Tax, &o.Total,
		&payment, &shiprocket, &o.ShipmentPending, &o.ShipmentAttempts,
		&o.ReturnStatus, &o.ReturnType, &o.ReturnAWB, &o.ReturnPickupState,
		&history, &o.ReturnResolvedAt, &refund, &o.ReplacementOrderID,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, err
	}
	if len(payment) > 0 {
		o.Payment = &domain.PaymentInfo{}
		if err := json.Unmarshal(payment, o.Payment); err != nil {
			return nil, err
		}
	}
	if len(shiprocket) > 0 {
		o.Shipment = &domain.ShipmentInfo{}
		if err := json.Unmarshal(shiprocket, o.Shipment); err != nil {
			return nil, err
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &o.ReturnHistory); err != nil {
			return nil, err
		}
	}
	if len(refund) > 0 {
		o.RefundInfo = &domain.RefundInfo{}
		if err := json.Unmarshal(refund, o.RefundInfo); err != nil {
			return nil, err
		}
	}

	return &o, nil
}

func collectOrders(rows pgx.Rows, op string) ([]domain.Order, error) {
	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan order")
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read orders")
	}
	return orders, nil
}
