package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vestalhq/vestal/internal/database"
	sqldb "github.com/vestalhq/vestal/internal/database/sqlc"
	"github.com/vestalhq/vestal/internal/versioning"
)

// Kind declares a versioned record kind.
type Kind struct {
	Name    string
	Columns []string
	Policy  versioning.Policy
	Anchors map[string]string
}

// RecordService persists records in SQLite and drives the versioning engine
// through their lifecycle.
type RecordService struct {
	ctx          *database.Context
	engine       *versioning.Engine
	kinds        map[string]Kind
	saveOnRemove bool
	logger       zerolog.Logger
	now          func() time.Time
}

// Option configures a RecordService.
type Option func(*RecordService)

// WithSaveOnRemove controls whether removing a relation saves the owner
// immediately. It defaults to true.
func WithSaveOnRemove(enabled bool) Option {
	return func(s *RecordService) { s.saveOnRemove = enabled }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *RecordService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *RecordService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRecordService creates a RecordService and configures engine for every
// kind.
func NewRecordService(dbCtx *database.Context, engine *versioning.Engine, kinds []Kind, opts ...Option) *RecordService {
	s := &RecordService{
		ctx:          dbCtx,
		engine:       engine,
		kinds:        make(map[string]Kind, len(kinds)),
		saveOnRemove: true,
		logger:       zerolog.Nop(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, kind := range kinds {
		s.kinds[kind.Name] = kind
		engine.Configure(kind.Name, kind.Columns, kind.Policy)
	}
	return s
}

// Engine returns the versioning engine.
func (s *RecordService) Engine() *versioning.Engine {
	return s.engine
}

// Kinds returns the configured kind names.
func (s *RecordService) Kinds() []string {
	return slices.Sorted(maps.Keys(s.kinds))
}

// New returns an unsaved record of kind.
func (s *RecordService) New(kind string) (*Record, error) {
	k, ok := s.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s.attach(&Record{Kind: k.Name, Attributes: map[string]any{}}, k), nil
}

// Get loads a record. The returned record starts with an unknown pointer.
func (s *RecordService) Get(ctx context.Context, kind, id string) (*Record, error) {
	k, ok := s.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	row, err := database.NewRecordRepository(s.ctx).Find(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
	}
	return s.fromRow(*row, k), nil
}

// List loads every record of kind.
func (s *RecordService) List(ctx context.Context, kind string) ([]*Record, error) {
	k, ok := s.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	rows, err := database.NewRecordRepository(s.ctx).ListByKind(ctx, kind)
	if err != nil {
		return nil, err
	}

	result := make([]*Record, 0, len(rows))
	for _, row := range rows {
		result = append(result, s.fromRow(row, k))
	}
	return result, nil
}

// Save inserts or updates rec and records its version in the same
// transaction. Saving a clean record is a no-op.
func (s *RecordService) Save(ctx context.Context, rec *Record) error {
	if _, ok := s.kinds[rec.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, rec.Kind)
	}
	if !rec.Dirty() {
		return nil
	}

	creating := !rec.persisted
	previousID, previousCreated, previousUpdated := rec.ID, rec.CreatedAt, rec.UpdatedAt
	now := s.now()

	err := database.WithTx(ctx, s.ctx, func(txCtx context.Context, q *sqldb.Queries) error {
		records := database.NewRecordRepository(s.ctx).WithQueries(q)
		engine := s.engineFor(q)

		rec.UpdatedAt = now
		if creating {
			if rec.ID == "" {
				rec.ID = uuid.NewString()
			}
			rec.CreatedAt = now
			if err := records.Create(txCtx, s.toRow(rec)); err != nil {
				return fmt.Errorf("insert %s/%s: %w", rec.Kind, rec.ID, err)
			}
			_, err := engine.RecordInitial(txCtx, rec)
			return err
		}

		if err := records.Update(txCtx, s.toRow(rec)); err != nil {
			return err
		}
		_, err := engine.RecordIfChanged(txCtx, rec, &rec.Pointer, rec.relations)
		return err
	})
	if err != nil {
		rec.ID, rec.CreatedAt, rec.UpdatedAt = previousID, previousCreated, previousUpdated
		return err
	}

	rec.commit()
	s.logger.Debug().Str("kind", rec.Kind).Str("id", rec.ID).Bool("created", creating).Msg("record saved")
	return nil
}

// Delete removes the record, its relations and its history.
func (s *RecordService) Delete(ctx context.Context, kind, id string) (bool, error) {
	if _, ok := s.kinds[kind]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	var deleted bool
	err := database.WithTx(ctx, s.ctx, func(txCtx context.Context, q *sqldb.Queries) error {
		var err error
		deleted, err = database.NewRecordRepository(s.ctx).WithQueries(q).Delete(txCtx, kind, id)
		if err != nil || !deleted {
			return err
		}
		rec := &Record{Kind: kind, ID: id}
		_, err = s.engineFor(q).Forget(txCtx, rec)
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Link relates rec to another record. The relation event is versioned on the
// owner's next save. A related record without identity is ignored.
func (s *RecordService) Link(ctx context.Context, rec *Record, relatedKind, relatedID string) (bool, error) {
	if !rec.persisted {
		return false, fmt.Errorf("link %s: %w", rec.Kind, versioning.ErrUnsavedRecord)
	}
	if relatedID == "" {
		// Reported as dropped by the tracker; nothing to store.
		return rec.relations.RecordAdd(relatedKind, relatedID), nil
	}

	added, err := database.NewRelationRepository(s.ctx).Add(ctx, database.RelationRow{
		OwnerKind:   rec.Kind,
		OwnerID:     rec.ID,
		RelatedKind: relatedKind,
		RelatedID:   relatedID,
		CreatedAt:   s.now(),
	})
	if err != nil || !added {
		return false, err
	}
	return rec.relations.RecordAdd(relatedKind, relatedID), nil
}

// Unlink removes a relation. The removal message saves the owner right away
// unless save-on-remove is disabled.
func (s *RecordService) Unlink(ctx context.Context, rec *Record, relatedKind, relatedID string) (bool, error) {
	if !rec.persisted {
		return false, fmt.Errorf("unlink %s: %w", rec.Kind, versioning.ErrUnsavedRecord)
	}
	if relatedID == "" {
		return rec.relations.RecordRemove(relatedKind, relatedID), nil
	}

	removed, err := database.NewRelationRepository(s.ctx).Remove(ctx, database.RelationRow{
		OwnerKind:   rec.Kind,
		OwnerID:     rec.ID,
		RelatedKind: relatedKind,
		RelatedID:   relatedID,
	})
	if err != nil || !removed {
		return false, err
	}

	rec.relations.RecordRemove(relatedKind, relatedID)
	for _, msg := range rec.takeMessages() {
		if !s.saveOnRemove {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			return true, fmt.Errorf("save %s after relation removal: %w", msg.Owner, err)
		}
	}
	return true, nil
}

// Relations lists the records rec is linked to.
func (s *RecordService) Relations(ctx context.Context, rec *Record) ([]database.RelationRow, error) {
	return database.NewRelationRepository(s.ctx).ListByOwner(ctx, rec.Kind, rec.ID)
}

// History returns rec's versions, oldest first.
func (s *RecordService) History(ctx context.Context, rec *Record) ([]versioning.Version, error) {
	return s.engine.Resolver(rec).Between(ctx, versioning.AnchorFirst, versioning.AnchorLast)
}

// Revert moves rec's in-memory attributes to the version at loc.
func (s *RecordService) Revert(ctx context.Context, rec *Record, loc versioning.Locator) (int64, error) {
	return s.engine.RevertTo(ctx, rec, &rec.Pointer, loc)
}

// RevertAndSave reverts rec and saves it, which appends a new version.
func (s *RecordService) RevertAndSave(ctx context.Context, rec *Record, loc versioning.Locator) (bool, error) {
	return s.engine.RevertToAndSave(ctx, rec, &rec.Pointer, loc, func(ctx context.Context) error {
		return s.Save(ctx, rec)
	})
}

func (s *RecordService) attach(rec *Record, k Kind) *Record {
	rec.anchors = k.Anchors
	rec.relations = s.engine.NewTracker(rec, func(msg versioning.RelationChanged) {
		rec.messages = append(rec.messages, msg)
	})
	return rec
}

// engineFor binds the engine to q when versions live in the same SQLite
// database as records.
func (s *RecordService) engineFor(q *sqldb.Queries) *versioning.Engine {
	if repo, ok := s.engine.Store().(*database.VersionRepository); ok {
		return s.engine.WithStore(repo.WithQueries(q))
	}
	return s.engine
}

func (s *RecordService) fromRow(row database.RecordRow, k Kind) *Record {
	rec := &Record{
		Kind:       row.Kind,
		ID:         row.ID,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		Attributes: row.Attributes,
	}
	s.attach(rec, k)
	rec.commit()
	return rec
}

func (s *RecordService) toRow(rec *Record) database.RecordRow {
	return database.RecordRow{
		Kind:       rec.Kind,
		ID:         rec.ID,
		Attributes: maps.Clone(rec.Attributes),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}
