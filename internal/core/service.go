package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lineagecore/internal/blob"
	"lineagecore/internal/infra/persistence/memory"
	"lineagecore/pkg/domain"
	"lineagecore/pkg/lineage"
	"strconv"
	"time"
)

// BlobStore receives exported layout artifacts.
type BlobStore = blob.Store

const (
	opCreateLineage = "create_lineage"
	opDivide        = "divide"
	opApplyDivision = "apply_division"
	opDeleteLineage = "delete_lineage"
	opGetLineage    = "get_lineage"
	opListLineages  = "list_lineages"
	opContains      = "contains"
	opLocateCell    = "locate_cell"
	opLayout        = "layout"
	opArrangeLayout = "arrange_layout"
	opExportLayout  = "export_layout"
)

// ErrBlobStoreUnset is returned by ExportLayout when no blob store was configured.
var ErrBlobStoreUnset = errors.New("blob store not configured")

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Service manages many independent lineages on top of a persistent store.
// Mutations run inside store transactions and are checked by the rules engine.
type Service struct {
	store   PersistentStore
	blobs   BlobStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store:   store,
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if clocked, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		clocked.SetNowFunc(svc.clock.Now)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// CreateLineage starts a new lineage holding only the founder cell.
func (s *Service) CreateLineage(ctx context.Context, founder lineage.CellID, birth float64) (Lineage, Result, error) {
	return s.CreateLabeledLineage(ctx, founder, birth, "")
}

// CreateLabeledLineage is CreateLineage with a free-form label, such as the
// sweep condition the founder was seeded under, stored on the record.
func (s *Service) CreateLabeledLineage(ctx context.Context, founder lineage.CellID, birth float64, label string) (Lineage, Result, error) {
	var created Lineage
	res, err := s.run(ctx, opCreateLineage, func(tx domain.Transaction) (string, error) {
		var err error
		created, err = tx.CreateLineage(Lineage{Label: label, Tree: lineage.New(founder, birth)})
		return created.ID, err
	})
	if err == nil {
		s.logger.Info("lineage created", "lineage", created.ID, "founder", founder, "birth", birth, "label", label)
	}
	return created, res, err
}

// Divide records a division inside the named lineage.
func (s *Service) Divide(ctx context.Context, lineageID string, event DivisionEvent) (Lineage, Result, error) {
	var updated Lineage
	res, err := s.run(ctx, opDivide, func(tx domain.Transaction) (string, error) {
		if _, ok := tx.FindLineage(lineageID); !ok {
			return lineageID, ErrNotFound{Entity: EntityLineage, ID: lineageID}
		}
		var err error
		updated, err = tx.DivideCell(lineageID, event)
		return lineageID, err
	})
	s.logDivision(lineageID, event, err)
	return updated, res, err
}

// ApplyDivision routes a division event to the lineage whose live cells
// include the mother. It fails with lineage.ErrUnknownMother when no lineage
// holds the mother as a live cell.
func (s *Service) ApplyDivision(ctx context.Context, event DivisionEvent) (Lineage, Result, error) {
	var updated Lineage
	var lineageID string
	res, err := s.run(ctx, opApplyDivision, func(tx domain.Transaction) (string, error) {
		owner, ok := tx.Snapshot().LocateCell(event.Mother)
		if !ok || !owner.Tree.IsLive(event.Mother) {
			return "", &lineage.DivisionError{Mother: event.Mother, Time: event.Time, Err: lineage.ErrUnknownMother}
		}
		lineageID = owner.ID
		var err error
		updated, err = tx.DivideCell(owner.ID, event)
		return owner.ID, err
	})
	s.logDivision(lineageID, event, err)
	return updated, res, err
}

// DeleteLineage removes a lineage and all of its cells.
func (s *Service) DeleteLineage(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, opDeleteLineage, func(tx domain.Transaction) (string, error) {
		if _, ok := tx.FindLineage(id); !ok {
			return id, ErrNotFound{Entity: EntityLineage, ID: id}
		}
		return id, tx.DeleteLineage(id)
	})
}

// GetLineage returns a copy of the lineage.
func (s *Service) GetLineage(ctx context.Context, id string) (Lineage, error) {
	var out Lineage
	err := s.observe(ctx, opGetLineage, func(context.Context) error {
		var err error
		out, err = s.lookup(id)
		return err
	})
	return out, err
}

// ListLineages returns copies of all lineages ordered by id.
func (s *Service) ListLineages(ctx context.Context) []Lineage {
	var out []Lineage
	_ = s.observe(ctx, opListLineages, func(context.Context) error {
		out = s.store.ListLineages()
		return nil
	})
	return out
}

// Contains reports whether the cell has ever existed in the lineage.
func (s *Service) Contains(ctx context.Context, lineageID string, cell lineage.CellID) (bool, error) {
	var found bool
	err := s.observe(ctx, opContains, func(context.Context) error {
		l, err := s.lookup(lineageID)
		if err != nil {
			return err
		}
		found = l.Tree.Contains(cell)
		return nil
	})
	return found, err
}

// LocateCell returns the id of the lineage containing the cell.
func (s *Service) LocateCell(ctx context.Context, cell lineage.CellID) (string, bool) {
	var id string
	var found bool
	_ = s.observe(ctx, opLocateCell, func(context.Context) error {
		var l Lineage
		l, found = s.store.LocateCell(cell)
		id = l.ID
		return nil
	})
	return id, found
}

// Layout derives the drawing segments of one lineage at tEnd.
func (s *Service) Layout(ctx context.Context, lineageID string, tEnd float64) (lineage.Layout, error) {
	var out lineage.Layout
	err := s.observe(ctx, opLayout, func(context.Context) error {
		l, err := s.lookup(lineageID)
		if err != nil {
			return err
		}
		out, err = l.Tree.Layout(tEnd)
		if err != nil {
			return fmt.Errorf("lineage %s: %w", lineageID, err)
		}
		return nil
	})
	return out, err
}

// ArrangeLayouts lays out every lineage at tEnd side by side in id order.
func (s *Service) ArrangeLayouts(ctx context.Context, tEnd float64) (lineage.Layout, error) {
	var out lineage.Layout
	err := s.observe(ctx, opArrangeLayout, func(context.Context) error {
		all := s.store.ListLineages()
		layouts := make([]lineage.Layout, 0, len(all))
		for _, l := range all {
			layout, err := l.Tree.Layout(tEnd)
			if err != nil {
				return fmt.Errorf("lineage %s: %w", l.ID, err)
			}
			layouts = append(layouts, layout)
		}
		out = lineage.Arrange(layouts...)
		return nil
	})
	return out, err
}

// LayoutKey returns the blob key an exported layout is written to.
func LayoutKey(lineageID string, tEnd float64) string {
	return fmt.Sprintf("layouts/%s/%s.json", lineageID, strconv.FormatFloat(tEnd, 'g', -1, 64))
}

// ExportLayout writes the lineage layout at tEnd to the blob store as JSON.
func (s *Service) ExportLayout(ctx context.Context, lineageID string, tEnd float64) (blob.Info, error) {
	var info blob.Info
	err := s.observe(ctx, opExportLayout, func(ctx context.Context) error {
		if s.blobs == nil {
			return ErrBlobStoreUnset
		}
		l, err := s.lookup(lineageID)
		if err != nil {
			return err
		}
		layout, err := l.Tree.Layout(tEnd)
		if err != nil {
			return fmt.Errorf("lineage %s: %w", lineageID, err)
		}
		payload, err := json.Marshal(layout)
		if err != nil {
			return fmt.Errorf("encode layout: %w", err)
		}
		info, err = s.blobs.Put(ctx, LayoutKey(lineageID, tEnd), bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata: map[string]string{
				"lineage": lineageID,
				"founder": string(l.Founder()),
				"t_end":   strconv.FormatFloat(tEnd, 'g', -1, 64),
			},
		})
		return err
	})
	if err == nil {
		s.logger.Info("layout exported", "lineage", lineageID, "key", info.Key, "bytes", info.Size)
	}
	return info, err
}

func (s *Service) lookup(id string) (Lineage, error) {
	l, ok := s.store.GetLineage(id)
	if !ok {
		return Lineage{}, ErrNotFound{Entity: EntityLineage, ID: id}
	}
	return l, nil
}

func (s *Service) logDivision(lineageID string, event DivisionEvent, err error) {
	if err != nil {
		s.logger.Debug("division rejected", "lineage", lineageID, "mother", event.Mother, "time", event.Time, "error", err)
		return
	}
	s.logger.Debug("division recorded", "lineage", lineageID, "mother", event.Mother,
		"daughters", []lineage.CellID{event.Daughters[0], event.Daughters[1]}, "time", event.Time)
}

// run executes fn in a store transaction wrapped in tracing, metrics, audit, and logging.
func (s *Service) run(ctx context.Context, op string, fn func(domain.Transaction) (string, error)) (Result, error) {
	var entityID string
	var res Result
	started := s.clock.Now()
	err := s.observe(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var innerErr error
			entityID, innerErr = fn(tx)
			return innerErr
		})
		return err
	})
	duration := s.clock.Now().Sub(started)
	for _, v := range res.Violations {
		if v.Severity == SeverityWarn {
			s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	if err != nil {
		s.recordAuditError(ctx, op, entityID, duration, err)
		return res, err
	}
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return res, nil
}

// observe wraps a single operation with a trace span, a metrics observation,
// and an outcome log line.
func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := s.clock.Now()
	err := fn(ctx)
	duration := s.clock.Now().Sub(started)
	s.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "duration", duration, "error", err)
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "duration", duration)
	return nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
