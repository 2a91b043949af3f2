package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"bulkload/internal/bulk"
)

// fakeRepo is a minimal Repository implementation for tests.
type fakeRepo struct {
	closed bool
}

func (f *fakeRepo) Load(_ context.Context, _ string, c *bulk.Cursor) (int64, error) {
	for c.Advance() {
	}
	return c.RowsRead(), c.Err()
}

func (f *fakeRepo) Close() { f.closed = true }

type item struct {
	ID   int    `db:"id"`
	Name string `db:"name,size=40"`
}

func (item) TableName() string { return "items" }

func newItemCursor(t *testing.T, n int) *bulk.Cursor {
	t.Helper()
	recs := make([]item, n)
	for i := range recs {
		recs[i] = item{ID: i + 1, Name: "x"}
	}
	c, err := bulk.NewRecordCursor(bulk.FromSlice(recs))
	if err != nil {
		t.Fatalf("NewRecordCursor() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestRegisterAndNew_Success verifies that registering a backend enables New()
// to return the corresponding repository.
func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	kind := "fake"
	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: kind})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	n, err := repo.Load(context.Background(), "", newItemCursor(t, 3))
	if err != nil || n != 3 {
		t.Fatalf("Load() = (%d, %v), want (3, nil)", n, err)
	}

	found := false
	for _, k := range ListKinds() {
		if k == kind {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("registered kind %q not present in ListKinds: %v", kind, ListKinds())
	}
}

// TestNew_Unsupported verifies that unsupported kinds return a helpful error.
func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if got, want := err.Error(), "unsupported storage.kind=does-not-exist"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

// TestRegister_Override verifies that re-registering a kind overrides the
// previous factory.
func TestRegister_Override(t *testing.T) {
	t.Parallel()

	kind := "override"
	calls := 0

	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		calls++
		return &fakeRepo{}, nil
	})
	Register(kind, func(ctx context.Context, cfg Config) (Repository, error) {
		calls += 10
		return &fakeRepo{}, nil
	})

	if _, err := New(context.Background(), Config{Kind: kind}); err != nil {
		t.Fatalf("New error: %v", err)
	}
	if calls != 10 {
		t.Fatalf("factory call count = %d, want 10", calls)
	}
}

// TestListKinds_Snapshot checks that ListKinds returns a copy.
func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(ctx context.Context, cfg Config) (Repository, error) { return &fakeRepo{}, nil })

	a := ListKinds()
	if len(a) == 0 {
		t.Fatalf("ListKinds empty after registration")
	}
	a[0] = "mutated"

	if b := ListKinds(); reflect.DeepEqual(a, b) {
		t.Fatalf("ListKinds returned same slice; want snapshot copy")
	}
}

// TestRegister_AllowsErrors shows factories can return errors that bubble up.
func TestRegister_AllowsErrors(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	Register("err", func(ctx context.Context, cfg Config) (Repository, error) { return nil, wantErr })

	if _, err := New(context.Background(), Config{Kind: "err"}); !errors.Is(err, wantErr) {
		t.Fatalf("New error = %v, want %v", err, wantErr)
	}
}

func TestDestination(t *testing.T) {
	t.Parallel()

	join := func(schema, table string) string { return schema + "|" + table }
	c := newItemCursor(t, 0)

	tests := []struct {
		table, fallback, want string
	}{
		{"explicit", "cfg", "explicit"},
		{"", "cfg", "cfg"},
		{"", "", "dbo|items"},
	}
	for _, tt := range tests {
		if got := Destination(tt.table, tt.fallback, c, join); got != tt.want {
			t.Errorf("Destination(%q, %q) = %q, want %q", tt.table, tt.fallback, got, tt.want)
		}
	}
}

func TestColumns(t *testing.T) {
	t.Parallel()

	got, err := Columns(newItemCursor(t, 0))
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	if want := []string{"id", "name"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Columns() = %v, want %v", got, want)
	}
}
