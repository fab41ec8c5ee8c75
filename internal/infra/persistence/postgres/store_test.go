package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"cloudlab/pkg/domain"
)

var stubSeq atomic.Int64

// stubConn is an in-memory driver.Conn understanding just the SQL the store
// issues: the state-table DDL, the bucket upsert, and the snapshot select.
type stubConn struct {
	buckets    map[string][]byte
	execs      []string
	failBegin  bool
	failExec   bool
	failCommit bool
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.failBegin {
		return nil, errors.New("begin refused")
	}
	return &stubTx{conn: c}, nil
}

func (c *stubConn) Ping(context.Context) error { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.failExec {
		return nil, errors.New("exec refused")
	}
	c.execs = append(c.execs, query)
	if strings.HasPrefix(query, "INSERT INTO state") {
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.buckets[bucket] = append([]byte(nil), payload...)
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.HasPrefix(query, "SELECT bucket, payload FROM state") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	names := make([]string, 0, len(c.buckets))
	for name := range c.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]driver.Value, 0, len(names))
	for _, name := range names {
		rows = append(rows, []driver.Value{name, append([]byte(nil), c.buckets[name]...)})
	}
	return &stubRows{rows: rows}, nil
}

type stubTx struct{ conn *stubConn }

func (t *stubTx) Commit() error {
	if t.conn.failCommit {
		return errors.New("commit refused")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func newStubDB(t *testing.T) (*sql.DB, *stubConn) {
	t.Helper()
	conn := &stubConn{buckets: map[string][]byte{}}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		t.Fatalf("open stub driver: %v", err)
	}
	return db, conn
}

func newStubStore(t *testing.T) (*Store, *stubConn) {
	t.Helper()
	db, conn := newStubDB(t)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	s, err := NewStore("ignored", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, conn
}

var stubScope = domain.Scope{UserID: "alice", LabID: "ec2-basics"}

func TestNewStoreEnsuresTableAndHydrates(t *testing.T) {
	db, conn := newStubDB(t)
	resources, err := json.Marshal([]domain.Resource{{
		ID:    "r1",
		Scope: stubScope,
		Type:  domain.ResourceVPC,
		State: domain.VPCState{VPCID: "vpc-12345678", CIDRBlock: "10.0.0.0/16"},
	}})
	if err != nil {
		t.Fatalf("encode resources: %v", err)
	}
	progress, err := json.Marshal([]domain.Progress{{
		Scope: stubScope, CurrentStepID: "create-subnet", CompletedSteps: []string{"create-vpc"},
	}})
	if err != nil {
		t.Fatalf("encode progress: %v", err)
	}
	conn.buckets["resources"] = resources
	conn.buckets["progress"] = progress

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	s, err := NewStore("ignored", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if len(conn.execs) == 0 || !strings.Contains(conn.execs[0], "CREATE TABLE IF NOT EXISTS state") {
		t.Fatalf("first statement = %v, want state DDL", conn.execs)
	}
	vpcs := s.ListResources(stubScope, domain.ResourceVPC)
	if len(vpcs) != 1 || vpcs[0].Key() != "vpc-12345678" {
		t.Fatalf("hydrated VPCs = %v", vpcs)
	}
	p, ok := s.GetProgress(stubScope)
	if !ok || p.CurrentStepID != "create-subnet" || !p.HasCompleted("create-vpc") {
		t.Fatalf("hydrated progress = %+v (ok=%v)", p, ok)
	}
}

func TestRunInScopeSnapshotsBuckets(t *testing.T) {
	s, conn := newStubStore(t)
	_, err := s.RunInScope(context.Background(), stubScope, func(tx domain.Transaction) error {
		if _, err := tx.CreateResource(domain.VPCState{VPCID: "vpc-12345678", CIDRBlock: "10.0.0.0/16"}); err != nil {
			return err
		}
		tx.PutProgress(domain.Progress{Scope: stubScope, CurrentStepID: "create-subnet"})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var resources []domain.Resource
	if err := json.Unmarshal(conn.buckets["resources"], &resources); err != nil {
		t.Fatalf("decode persisted resources: %v", err)
	}
	if len(resources) != 1 || resources[0].Key() != "vpc-12345678" {
		t.Fatalf("persisted resources = %v", resources)
	}
	var progress []domain.Progress
	if err := json.Unmarshal(conn.buckets["progress"], &progress); err != nil {
		t.Fatalf("decode persisted progress: %v", err)
	}
	if len(progress) != 1 || progress[0].CurrentStepID != "create-subnet" {
		t.Fatalf("persisted progress = %v", progress)
	}
}

func TestResetScopeSnapshotsRemoval(t *testing.T) {
	s, conn := newStubStore(t)
	_, err := s.RunInScope(context.Background(), stubScope, func(tx domain.Transaction) error {
		_, err := tx.CreateResource(domain.BucketState{BucketName: "assets"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.ResetScope(context.Background(), stubScope); err != nil {
		t.Fatalf("reset: %v", err)
	}
	var resources []domain.Resource
	if err := json.Unmarshal(conn.buckets["resources"], &resources); err != nil {
		t.Fatalf("decode persisted resources: %v", err)
	}
	if len(resources) != 0 {
		t.Fatalf("reset scope still persisted %d resources", len(resources))
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	})
	defer restore()
	if _, err := NewStore("ignored", nil); err == nil {
		t.Fatal("expected open error")
	}
}

func TestPersistFailuresSurfaceAsPersistenceErrors(t *testing.T) {
	s, conn := newStubStore(t)
	create := func() error {
		_, err := s.RunInScope(context.Background(), stubScope, func(tx domain.Transaction) error {
			_, err := tx.CreateResource(domain.IAMUserState{UserName: "carol"})
			return err
		})
		return err
	}

	conn.failBegin = true
	var pe domain.PersistenceError
	if err := create(); !errors.As(err, &pe) {
		t.Fatalf("begin failure: expected PersistenceError, got %v", err)
	}
	conn.failBegin = false

	if err := s.ResetScope(context.Background(), stubScope); err != nil {
		t.Fatalf("reset between cases: %v", err)
	}

	conn.failExec = true
	if err := create(); !errors.As(err, &pe) {
		t.Fatalf("exec failure: expected PersistenceError, got %v", err)
	}
	conn.failExec = false

	if err := s.ResetScope(context.Background(), stubScope); err != nil {
		t.Fatalf("reset between cases: %v", err)
	}

	conn.failCommit = true
	if err := create(); !errors.As(err, &pe) {
		t.Fatalf("commit failure: expected PersistenceError, got %v", err)
	}
}
