package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/event"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/ledger")

// ApplyOptions carries per-operation policy overrides.
type ApplyOptions struct {
	// AllowNegative lets a decrease take the balance below zero (back-orders).
	AllowNegative bool
}

// Result is the outcome of applying one movement.
type Result struct {
	Movement entity.StockMovement    `json:"movement"`
	Balance  entity.InventoryBalance `json:"balance"`
	// Replayed is set when an identical referenced movement already existed and
	// nothing was appended.
	Replayed bool `json:"replayed"`
}

// ProjectorConfig configures the projector.
type ProjectorConfig struct {
	Policy tx.Policy
	// DedupReferenceTypes lists reference types whose events are naturally idempotent.
	// A second movement with the same key, type and reference is not appended.
	DedupReferenceTypes []entity.ReferenceType
}

// Projector applies movements and maintains the materialized balance in one transaction.
type Projector struct {
	txm       tx.Manager
	ledger    *Ledger
	movements MovementRepository
	balances  BalanceRepository
	events    event.Publisher
	policy    tx.Policy
	dedup     map[entity.ReferenceType]bool
}

// NewProjector wires a projector. events may be nil.
func NewProjector(txm tx.Manager, movements MovementRepository, balances BalanceRepository, events event.Publisher, cfg ProjectorConfig) *Projector {
	if events == nil {
		events = event.Nop{}
	}
	dedup := make(map[entity.ReferenceType]bool, len(cfg.DedupReferenceTypes))
	for _, rt := range cfg.DedupReferenceTypes {
		dedup[rt] = true
	}
	return &Projector{
		txm:       txm,
		ledger:    NewLedger(movements),
		movements: movements,
		balances:  balances,
		events:    events,
		policy:    cfg.Policy,
		dedup:     dedup,
	}
}

// ApplyMovement locks the candidate's balance row, rejects a decrease that would go
// negative, appends the movement and stores the new balance, all in one transaction.
// Called inside an existing transaction it joins it.
func (p *Projector) ApplyMovement(ctx context.Context, candidate entity.StockMovement, opts ApplyOptions) (Result, error) {
	results, err := p.ApplyBatch(ctx, []entity.StockMovement{candidate}, opts)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ApplyBatch applies several movements atomically. Balance rows are locked in key order
// so concurrent batches over the same keys cannot deadlock. Results follow input order.
func (p *Projector) ApplyBatch(ctx context.Context, candidates []entity.StockMovement, opts ApplyOptions) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, apperror.NewValidation("at least one movement is required")
	}
	for i := range candidates {
		if err := candidates[i].Validate(ctx); err != nil {
			return nil, err
		}
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Key().Less(candidates[order[b]].Key())
	})

	var results []Result
	err := tx.Run(ctx, p.txm, p.policy, "apply_movement", func(ctx context.Context) error {
		results = make([]Result, len(candidates))
		for _, i := range order {
			res, err := p.apply(ctx, candidates[i], opts)
			if err != nil {
				return err
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Replayed {
			continue
		}
		logger.Info(ctx, "stock movement recorded",
			"movement_id", r.Movement.ID,
			"product_id", r.Movement.ProductID,
			"location_id", r.Movement.LocationID,
			"movement_type", r.Movement.MovementType,
			"signed_quantity", r.Movement.SignedQuantity.String(),
			"balance", r.Balance.Quantity.String(),
		)
	}
	return results, nil
}

// apply runs steps (a)-(d) for one candidate. Must run inside a transaction.
func (p *Projector) apply(ctx context.Context, c entity.StockMovement, opts ApplyOptions) (Result, error) {
	ctx, span := tracer.Start(ctx, "ledger.apply",
		trace.WithAttributes(
			attribute.String("movement.type", string(c.MovementType)),
			attribute.String("balance.key", c.Key().String()),
		))
	defer span.End()

	current, err := p.balances.GetForUpdate(ctx, c.Key())
	if err != nil {
		return Result{}, fmt.Errorf("lock balance %s: %w", c.Key(), err)
	}

	if p.dedup[c.ReferenceType] && c.ReferenceID != "" {
		existing, err := p.movements.FindByReference(ctx, c.Key(), c.MovementType, c.ReferenceType, c.ReferenceID)
		if err != nil {
			return Result{}, fmt.Errorf("find movement by reference: %w", err)
		}
		if existing != nil {
			return Result{Movement: *existing, Balance: current, Replayed: true}, nil
		}
	}

	if err := CheckNonNegative(current, c.SignedQuantity, opts); err != nil {
		return Result{}, err
	}

	m, err := p.ledger.Append(ctx, c)
	if err != nil {
		return Result{}, err
	}

	next := current.Apply(m)
	if err := p.balances.Save(ctx, &next); err != nil {
		return Result{}, err
	}

	if err := p.events.Publish(ctx, event.Event{
		TenantID:      m.TenantID,
		AggregateType: "stock_movement",
		AggregateID:   strconv.FormatInt(m.ID, 10),
		EventType:     event.MovementRecorded,
		Payload: map[string]any{
			"movement": m,
			"balance":  next.Quantity,
		},
	}); err != nil {
		return Result{}, fmt.Errorf("publish movement event: %w", err)
	}

	return Result{Movement: m, Balance: next}, nil
}

// CheckNonNegative enforces the default non-negative policy. Only decreases are checked;
// an increase is always accepted even when the balance stays below zero.
func CheckNonNegative(current entity.InventoryBalance, delta types.Quantity, opts ApplyOptions) error {
	if opts.AllowNegative || !delta.IsNegative() {
		return nil
	}
	if current.Quantity+delta >= 0 {
		return nil
	}
	return apperror.NewInsufficientStock(
		current.ProductID.String(),
		current.LocationID.String(),
		current.Quantity.String(),
		delta.Abs().String(),
	)
}
