package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/schema"
)

const (
	localTimeLayout = "2006-01-02T15:04:05"
	defaultLimit    = 250
)

// SQLite is the reference Store backend. Entities become tables created
// lazily from the schema Oracle's descriptors; values are encoded per kind.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single-connection pool (SQLite supports one writer at a time)
type SQLite struct {
	db     *sql.DB
	oracle schema.Oracle

	mu      sync.Mutex
	ensured map[string]bool
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Idempotent - safe to call against an existing database.
func OpenSQLite(path string, oracle schema.Oracle) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Single writer avoids SQLITE_BUSY under the one-connection pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return &SQLite{db: db, oracle: oracle, ensured: make(map[string]bool)}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ensureEntity creates the backing table for an entity if needed and
// returns its descriptor.
func (s *SQLite) ensureEntity(ctx context.Context, entity string) (*schema.EntityDescriptor, error) {
	ent, err := s.oracle.Entity(ctx, entity)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[entity] {
		return ent, nil
	}

	var cols []string
	for _, name := range ent.Columns() {
		col, _ := ent.Column(name)
		if col.IsPrimaryID {
			cols = append(cols, quoteIdent(name)+" TEXT PRIMARY KEY")
			continue
		}
		cols = append(cols, quoteIdent(name)+" "+sqlType(col.Kind))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(entity), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", entity, err)
	}

	// Intersect entities get a unique index over both sides so duplicate
	// associations surface as constraint violations.
	if ent.IsIntersect {
		idx := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			quoteIdent("ux_"+entity+"_sides"),
			quoteIdent(entity),
			quoteIdent(ent.IntersectSides[0].Column),
			quoteIdent(ent.IntersectSides[1].Column),
		)
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return nil, fmt.Errorf("create intersect index for %s: %w", entity, err)
		}
	}

	s.ensured[entity] = true
	return ent, nil
}

// Create implements Store.
func (s *SQLite) Create(ctx context.Context, rec *record.TypedRecord) (uuid.UUID, error) {
	ent, err := s.ensureEntity(ctx, rec.Entity)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	if rec.ID != nil && *rec.ID != uuid.Nil {
		id = *rec.ID
	}

	names := []string{quoteIdent(ent.PrimaryIDColumn)}
	placeholders := []string{"?"}
	args := []any{id.String()}
	for _, name := range rec.Columns() {
		if name == ent.PrimaryIDColumn {
			continue
		}
		v, _ := rec.Get(name)
		enc, err := encodeValue(v)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode %s.%s: %w", rec.Entity, name, err)
		}
		names = append(names, quoteIdent(name))
		placeholders = append(placeholders, "?")
		args = append(args, enc)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(rec.Entity), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, NewFault(FaultDuplicateRecord, "record %s already exists in %s", id, rec.Entity)
		}
		return uuid.Nil, fmt.Errorf("insert into %s: %w", rec.Entity, err)
	}
	return id, nil
}

// Update implements Store. A record with zero non-id columns is a no-op.
func (s *SQLite) Update(ctx context.Context, rec *record.TypedRecord) error {
	ent, err := s.ensureEntity(ctx, rec.Entity)
	if err != nil {
		return err
	}
	if rec.ID == nil {
		return NewFault(FaultInvalidRequest, "update of %s requires an id", rec.Entity)
	}

	var sets []string
	var args []any
	for _, name := range rec.Columns() {
		if name == ent.PrimaryIDColumn {
			continue
		}
		v, _ := rec.Get(name)
		enc, err := encodeValue(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", rec.Entity, name, err)
		}
		sets = append(sets, quoteIdent(name)+" = ?")
		args = append(args, enc)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, rec.ID.String())

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(rec.Entity), strings.Join(sets, ", "), quoteIdent(ent.PrimaryIDColumn))
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.Entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.Entity, err)
	}
	if n == 0 {
		return NewFault(FaultNotFound, "record %s not found in %s", rec.ID, rec.Entity)
	}
	return nil
}

// Upsert implements Store as an existence probe followed by the matching
// write. The single-connection pool keeps probe and write race-free.
// Returns the row identity and whether a new row was created.
func (s *SQLite) Upsert(ctx context.Context, rec *record.TypedRecord) (uuid.UUID, bool, error) {
	ent, err := s.ensureEntity(ctx, rec.Entity)
	if err != nil {
		return uuid.Nil, false, err
	}

	id := uuid.New()
	if rec.ID != nil && *rec.ID != uuid.Nil {
		id = *rec.ID
	}

	var exists bool
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", quoteIdent(rec.Entity), quoteIdent(ent.PrimaryIDColumn)),
		id.String())
	switch err := row.Scan(new(int)); err {
	case nil:
		exists = true
	case sql.ErrNoRows:
		exists = false
	default:
		return uuid.Nil, false, fmt.Errorf("upsert probe %s: %w", rec.Entity, err)
	}

	clone := rec.Clone()
	clone.ID = &id
	if exists {
		if err := s.Update(ctx, clone); err != nil {
			return uuid.Nil, false, err
		}
		return id, false, nil
	}
	created, err := s.Create(ctx, clone)
	if err != nil {
		return uuid.Nil, false, err
	}
	return created, true, nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, entity string, id uuid.UUID) error {
	ent, err := s.ensureEntity(ctx, entity)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(entity), quoteIdent(ent.PrimaryIDColumn)),
		id.String())
	if err != nil {
		return fmt.Errorf("delete from %s: %w", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", entity, err)
	}
	if n == 0 {
		return NewFault(FaultNotFound, "record %s not found in %s", id, entity)
	}
	return nil
}

// Retrieve implements Store.
func (s *SQLite) Retrieve(ctx context.Context, entity string, id uuid.UUID, columns []string) (*record.TypedRecord, error) {
	ent, err := s.ensureEntity(ctx, entity)
	if err != nil {
		return nil, err
	}
	recs, err := s.query(ctx, ent, Query{
		Entity:     entity,
		Conditions: []Condition{{Column: ent.PrimaryIDColumn, Op: CondEq, Value: record.ID(id)}},
		Columns:    columns,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewFault(FaultNotFound, "record %s not found in %s", id, entity)
	}
	return recs[0], nil
}

// Query implements Store.
func (s *SQLite) Query(ctx context.Context, q Query) ([]*record.TypedRecord, error) {
	ent, err := s.ensureEntity(ctx, q.Entity)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, ent, q)
}

func (s *SQLite) query(ctx context.Context, ent *schema.EntityDescriptor, q Query) ([]*record.TypedRecord, error) {
	cols := q.Columns
	if len(cols) == 0 {
		cols = ent.Columns()
	} else {
		// Always select the id so results carry their identity.
		hasID := false
		for _, c := range cols {
			if c == ent.PrimaryIDColumn {
				hasID = true
				break
			}
		}
		if !hasID {
			cols = append([]string{ent.PrimaryIDColumn}, cols...)
		}
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		if _, ok := ent.Column(c); !ok {
			return nil, NewFault(FaultInvalidRequest, "unknown column %s.%s", ent.Name, c)
		}
		quoted[i] = quoteIdent(c)
	}

	var where []string
	var args []any
	conditions := q.Conditions
	if q.ActiveOnly && ent.HasState() {
		conditions = append(conditions, Condition{
			Column: ent.StateColumn,
			Op:     CondEq,
			Value:  record.Option(0),
		})
	}
	for _, cond := range conditions {
		if _, ok := ent.Column(cond.Column); !ok {
			return nil, NewFault(FaultInvalidRequest, "unknown column %s.%s", ent.Name, cond.Column)
		}
		switch cond.Op {
		case CondEq:
			enc, err := encodeValue(cond.Value)
			if err != nil {
				return nil, fmt.Errorf("encode condition %s: %w", cond.Column, err)
			}
			where = append(where, quoteIdent(cond.Column)+" = ?")
			args = append(args, enc)
		case CondIn:
			placeholders := make([]string, len(cond.Values))
			for i, v := range cond.Values {
				enc, err := encodeValue(v)
				if err != nil {
					return nil, fmt.Errorf("encode condition %s: %w", cond.Column, err)
				}
				placeholders[i] = "?"
				args = append(args, enc)
			}
			where = append(where, quoteIdent(cond.Column)+" IN ("+strings.Join(placeholders, ", ")+")")
		default:
			return nil, NewFault(FaultInvalidRequest, "unsupported condition operator %d", cond.Op)
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(ent.Name))
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += fmt.Sprintf(" ORDER BY %s LIMIT %d", quoteIdent(ent.PrimaryIDColumn), limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ent.Name, err)
	}
	defer rows.Close()

	var out []*record.TypedRecord
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ent.Name, err)
		}

		rec := record.NewTyped(ent.Name)
		for i, name := range cols {
			if raw[i] == nil {
				continue
			}
			col, _ := ent.Column(name)
			v, err := decodeValue(ent, col, raw[i])
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", ent.Name, name, err)
			}
			if col.IsPrimaryID {
				id := uuid.UUID(v.(record.ID))
				rec.ID = &id
				continue
			}
			rec.Set(name, v)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", ent.Name, err)
	}
	return out, nil
}

// ExecuteBatch implements Store. Every request is attempted; per-item
// failures become Faults in the corresponding Result slot, and results are
// returned in exact submission order.
func (s *SQLite) ExecuteBatch(ctx context.Context, caller Caller, reqs []Request) ([]Result, error) {
	slog.Debug("executing batch", "caller", string(caller), "size", len(reqs))

	results := make([]Result, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch interrupted: %w", err)
		}
		results[i] = s.executeOne(ctx, req)
	}
	return results, nil
}

func (s *SQLite) executeOne(ctx context.Context, req Request) Result {
	switch req.Op {
	case OpCreate:
		id, err := s.Create(ctx, req.Record)
		if err != nil {
			return Result{Err: AsFault(err)}
		}
		return Result{ID: id, Created: true}

	case OpUpdate:
		if err := s.Update(ctx, req.Record); err != nil {
			return Result{Err: AsFault(err)}
		}
		return Result{ID: *req.Record.ID}

	case OpUpsert:
		id, created, err := s.Upsert(ctx, req.Record)
		if err != nil {
			return Result{Err: AsFault(err)}
		}
		return Result{ID: id, Created: created}

	case OpDelete:
		if err := s.Delete(ctx, req.Target.Entity, req.Target.ID); err != nil {
			return Result{Err: AsFault(err)}
		}
		return Result{ID: req.Target.ID}

	case OpAssign:
		return s.assign(ctx, req)

	case OpSetState:
		return s.setState(ctx, req)

	case OpAssociate:
		return s.associate(ctx, req)

	default:
		return Result{Err: NewFault(FaultInvalidRequest, "unsupported operation %q", req.Op)}
	}
}

func (s *SQLite) assign(ctx context.Context, req Request) Result {
	ent, err := s.ensureEntity(ctx, req.Target.Entity)
	if err != nil {
		return Result{Err: AsFault(err)}
	}
	if ent.OwnerColumn == "" {
		return Result{Err: NewFault(FaultInvalidRequest, "entity %s has no owner column", ent.Name)}
	}
	rec := record.NewTyped(req.Target.Entity)
	rec.ID = &req.Target.ID
	rec.Set(ent.OwnerColumn, req.Owner)
	if err := s.Update(ctx, rec); err != nil {
		return Result{Err: WrapFault(FaultInternal, "assign failed", err)}
	}
	return Result{ID: req.Target.ID}
}

func (s *SQLite) setState(ctx context.Context, req Request) Result {
	ent, err := s.ensureEntity(ctx, req.Target.Entity)
	if err != nil {
		return Result{Err: AsFault(err)}
	}
	rec := record.NewTyped(req.Target.Entity)
	rec.ID = &req.Target.ID
	if req.State != nil && ent.StateColumn != "" {
		rec.Set(ent.StateColumn, *req.State)
	}
	if req.Status != nil && ent.StatusColumn != "" {
		rec.Set(ent.StatusColumn, *req.Status)
	}
	if rec.Len() == 0 {
		return Result{Err: NewFault(FaultInvalidRequest, "state transition for %s carries no state or status", ent.Name)}
	}
	if err := s.Update(ctx, rec); err != nil {
		return Result{Err: WrapFault(FaultInternal, "state transition failed", err)}
	}
	return Result{ID: req.Target.ID}
}

func (s *SQLite) associate(ctx context.Context, req Request) Result {
	ent, err := s.ensureEntity(ctx, req.Intersect)
	if err != nil {
		return Result{Err: AsFault(err)}
	}
	if !ent.IsIntersect {
		return Result{Err: NewFault(FaultInvalidRequest, "entity %s is not an intersect type", ent.Name)}
	}

	rec := record.NewTyped(req.Intersect)
	rec.Set(ent.IntersectSides[0].Column, record.ID(req.Target.ID))
	rec.Set(ent.IntersectSides[1].Column, record.ID(req.Related.ID))
	id, err := s.Create(ctx, rec)
	if err != nil {
		// The sides index reports duplicates as a generic duplicate-record
		// fault; reclassify so recovery predicates can match it.
		var f *Fault
		if errors.As(err, &f) && f.HasCode(FaultDuplicateRecord) {
			return Result{Err: NewFault(FaultDuplicateAssociation,
				"%s and %s are already associated via %s", req.Target, req.Related, req.Intersect)}
		}
		return Result{Err: AsFault(err)}
	}
	return Result{ID: id, Created: true}
}

// isUniqueViolation reports whether err is a SQLite unique or primary-key
// constraint violation.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// encodeValue converts a storage value to its SQLite representation.
func encodeValue(v record.Value) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case record.Text:
		return string(val), nil
	case record.Int:
		return int64(val), nil
	case record.Float:
		return float64(val), nil
	case record.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case record.Decimal:
		return val.String(), nil
	case record.Money:
		return val.String(), nil
	case record.Time:
		if val.LocalTag {
			return val.T.Format(localTimeLayout), nil
		}
		return val.T.UTC().Format(time.RFC3339Nano), nil
	case record.Ref:
		return val.Entity + ":" + val.ID.String(), nil
	case record.Option:
		return int64(val), nil
	case record.OptionList:
		parts := make([]string, len(val))
		for i, o := range val {
			parts[i] = strconv.FormatInt(int64(o), 10)
		}
		return strings.Join(parts, ","), nil
	case record.ID:
		return val.String(), nil
	case record.PartyList:
		return nil, fmt.Errorf("partylist columns are not persistable in the sqlite backend")
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// decodeValue converts a scanned SQLite value back to a storage value using
// the column's declared kind.
func decodeValue(ent *schema.EntityDescriptor, col *schema.ColumnDescriptor, raw any) (record.Value, error) {
	switch col.Kind {
	case record.KindText, record.KindMemo:
		return record.Text(asString(raw)), nil

	case record.KindInteger, record.KindBigInt:
		n, err := asInt(raw)
		if err != nil {
			return nil, err
		}
		return record.Int(n), nil

	case record.KindDouble:
		switch v := raw.(type) {
		case float64:
			return record.Float(v), nil
		case int64:
			return record.Float(v), nil
		default:
			return nil, fmt.Errorf("unexpected double representation %T", raw)
		}

	case record.KindDecimal:
		return record.NewDecimal(asString(raw))

	case record.KindMoney:
		d, err := record.NewDecimal(asString(raw))
		if err != nil {
			return nil, err
		}
		return record.Money{Amount: d.D}, nil

	case record.KindBoolean:
		n, err := asInt(raw)
		if err != nil {
			return nil, err
		}
		return record.Bool(n != 0), nil

	case record.KindDateTime:
		s := asString(raw)
		if ent.HasLocalTime {
			t, err := time.Parse(localTimeLayout, s)
			if err != nil {
				return nil, fmt.Errorf("parse local time %q: %w", s, err)
			}
			return record.Time{T: t, LocalTag: true}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %w", s, err)
		}
		return record.Time{T: t.UTC()}, nil

	case record.KindRef:
		s := asString(raw)
		entity, idText, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("malformed reference %q", s)
		}
		id, err := uuid.Parse(idText)
		if err != nil {
			return nil, fmt.Errorf("malformed reference id %q: %w", idText, err)
		}
		return record.Ref{Entity: entity, ID: id}, nil

	case record.KindOption:
		n, err := asInt(raw)
		if err != nil {
			return nil, err
		}
		return record.Option(n), nil

	case record.KindOptionList:
		s := asString(raw)
		if s == "" {
			return record.OptionList{}, nil
		}
		parts := strings.Split(s, ",")
		list := make(record.OptionList, len(parts))
		for i, p := range parts {
			n, err := strconv.ParseInt(p, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("malformed option list %q: %w", s, err)
			}
			list[i] = int32(n)
		}
		return list, nil

	case record.KindID:
		id, err := uuid.Parse(asString(raw))
		if err != nil {
			return nil, fmt.Errorf("malformed id %q: %w", asString(raw), err)
		}
		return record.ID(id), nil

	default:
		return nil, fmt.Errorf("unsupported column kind %q", col.Kind)
	}
}

func sqlType(kind record.Kind) string {
	switch kind {
	case record.KindInteger, record.KindBigInt, record.KindOption, record.KindBoolean:
		return "INTEGER"
	case record.KindDouble:
		return "REAL"
	default:
		return "TEXT"
	}
}

func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected integer representation %T", raw)
	}
}

// quoteIdent quotes an identifier for SQLite. Schema names come from CUE
// files, not user record input, but quoting keeps reserved words usable as
// column names.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
