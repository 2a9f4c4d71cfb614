package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"costmanager/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "costs.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestAppendThenListAll(t *testing.T) {
	repo := newTestRepo(t)
	repo.now = func() time.Time { return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.Local) }
	ctx := context.Background()

	first, err := repo.Append(ctx, core.CostInput{Sum: 100, Currency: "USD", Category: "Food", Description: "groceries"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := repo.Append(ctx, core.CostInput{Sum: 50, Currency: "EURO", Category: "Car", Description: "fuel"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("ids must increase: %d then %d", first.ID, second.ID)
	}
	if first.CreatedDate != (core.DateParts{Year: 2024, Month: 3, Day: 5}) {
		t.Fatalf("unexpected created date %+v", first.CreatedDate)
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0] != first || all[1] != second {
		t.Fatalf("stored entries differ: %+v", all)
	}
}

func TestAppendRejectsInvalidInput(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	bads := []core.CostInput{
		{Sum: 0, Currency: "USD", Category: "c", Description: "d"},
		{Sum: -5, Currency: "USD", Category: "c", Description: "d"},
		{Sum: 1, Currency: "USD", Category: "c", Description: ""},
	}
	for i, in := range bads {
		if _, err := repo.Append(ctx, in); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}

	all, err := repo.ListAll(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("nothing should be stored: %v %v", all, err)
	}
}

func TestOperationsBeforeOpen(t *testing.T) {
	repo := New(filepath.Join(t.TempDir(), "costs.db"))
	ctx := context.Background()

	if _, err := repo.ListAll(ctx); !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if _, err := repo.Append(ctx, core.CostInput{Sum: 1, Currency: "USD", Category: "c", Description: "d"}); !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}

	if err := repo.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()
	// idempotent
	if err := repo.Open(ctx); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if _, err := repo.ListAll(ctx); err != nil {
		t.Fatalf("list after open: %v", err)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping open repo: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := repo.ListAll(context.Background()); !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if err := repo.Ping(context.Background()); !errors.Is(err, core.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable from ping, got %v", err)
	}
}

func TestReopenKeepsEntriesAndIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.db")
	ctx := context.Background()

	repo, err := NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first, err := repo.Append(ctx, core.CostInput{Sum: 1, Currency: "USD", Category: "c", Description: "d"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	second, err := repo.Append(ctx, core.CostInput{Sum: 2, Currency: "USD", Category: "c", Description: "d"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("ids must keep increasing across reopen: %d then %d", first.ID, second.ID)
	}
	all, _ := repo.ListAll(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", len(all))
	}
}

func TestConcurrentAppendsGetDistinctIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := repo.Append(ctx, core.CostInput{Sum: 1, Currency: "USD", Category: "c", Description: "d"})
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			ids <- e.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("list not ascending at %d", i)
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.GetSetting(ctx, "ratesUrl"); ok || err != nil {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}
	if err := repo.PutSettings(ctx, map[string]string{"ratesUrl": "https://a.example/rates.json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.PutSettings(ctx, map[string]string{"ratesUrl": "https://b.example/rates.json"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := repo.GetSetting(ctx, "ratesUrl")
	if err != nil || !ok || v != "https://b.example/rates.json" {
		t.Fatalf("unexpected setting %q ok=%v err=%v", v, ok, err)
	}
}
