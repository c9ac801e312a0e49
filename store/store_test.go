package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/apperror"
)

var baseTime = time.Now().UTC().Truncate(time.Second)

func makeRecords(n int, start time.Time) []AddressRecord {
	out := make([]AddressRecord, n)
	for i := range out {
		out[i] = AddressRecord{
			Address:   fmt.Sprintf("user%02d@example.test", i),
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestPolicyKeepsMostRecent(t *testing.T) {
	p := Policy{MaxRecords: 10, Expiry: DefaultExpiry}
	records := makeRecords(15, baseTime.Add(-time.Hour))

	kept := p.Apply(records, baseTime)
	if len(kept) != 10 {
		t.Fatalf("kept %d records, want 10", len(kept))
	}
	if kept[0].Address != "user05@example.test" || kept[9].Address != "user14@example.test" {
		t.Fatalf("unexpected window %s..%s", kept[0].Address, kept[9].Address)
	}
}

func TestPolicyDropsExpired(t *testing.T) {
	p := Policy{MaxRecords: 10, Expiry: 7 * 24 * time.Hour}
	records := []AddressRecord{
		{Address: "old@example.test", CreatedAt: baseTime.Add(-8 * 24 * time.Hour)},
		{Address: "edge@example.test", CreatedAt: baseTime.Add(-7 * 24 * time.Hour)},
		{Address: "new@example.test", CreatedAt: baseTime.Add(-time.Hour)},
	}
	kept := p.Apply(records, baseTime)
	if len(kept) != 1 || kept[0].Address != "new@example.test" {
		t.Fatalf("kept %+v, want only new@example.test", kept)
	}
}

func testBook(t *testing.T, jar Jar) *Book {
	t.Helper()
	b := NewBook(jar, "", Policy{MaxRecords: 10, Expiry: DefaultExpiry}, nil)
	b.SetClock(func() time.Time { return baseTime })
	return b
}

func exerciseBook(t *testing.T, b *Book) {
	t.Helper()
	ctx := context.Background()

	got, err := b.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty Load = %v, %v", got, err)
	}

	records := makeRecords(15, baseTime.Add(-time.Hour))
	checked := baseTime.Add(-time.Minute)
	records[14].LastChecked = &checked
	records[14].Envelopes = []api.Envelope{{UID: "1", Subject: "hello"}}
	if err := b.Save(ctx, records); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err = b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("loaded %d records, want 10", len(got))
	}
	last := got[9]
	if last.Address != "user14@example.test" || last.LastChecked == nil || len(last.Envelopes) != 1 {
		t.Fatalf("last record not round-tripped: %+v", last)
	}

	usage := b.Usage(ctx)
	if usage.Count != 10 || usage.Size == 0 {
		t.Fatalf("unexpected usage %+v", usage)
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ = b.Load(ctx)
	if len(got) != 0 {
		t.Fatalf("after Clear loaded %d records", len(got))
	}
}

func TestBookWithFileJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "jar.json")
	jar, err := NewFileJar(path)
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}
	exerciseBook(t, testBook(t, jar))
}

func TestBookWithSQLiteJar(t *testing.T) {
	jar, err := OpenSQLiteJar(context.Background(), "")
	if err != nil {
		t.Fatalf("OpenSQLiteJar: %v", err)
	}
	defer jar.Close()
	exerciseBook(t, testBook(t, jar))
}

func TestFileJarPersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jar.json")
	jar, err := NewFileJar(path)
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}
	if err := jar.Set(ctx, "k", []byte(`"v"`), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := NewFileJar(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, found, err := reopened.Get(ctx, "k")
	if err != nil || !found || string(v) != `"v"` {
		t.Fatalf("Get = %q, %v, %v", v, found, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("jar mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestJarsExpireAndSweep(t *testing.T) {
	ctx := context.Background()
	fileJar, err := NewFileJar(filepath.Join(t.TempDir(), "jar.json"))
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}
	sqliteJar, err := OpenSQLiteJar(ctx, "")
	if err != nil {
		t.Fatalf("OpenSQLiteJar: %v", err)
	}
	defer sqliteJar.Close()

	clock := baseTime
	fileJar.now = func() time.Time { return clock }
	sqliteJar.now = func() time.Time { return clock }

	for name, jar := range map[string]Jar{"file": fileJar, "sqlite": sqliteJar} {
		clock = baseTime
		if err := jar.Set(ctx, "short", []byte("1"), baseTime.Add(time.Minute)); err != nil {
			t.Fatalf("%s: Set: %v", name, err)
		}
		if err := jar.Set(ctx, "long", []byte("2"), baseTime.Add(time.Hour)); err != nil {
			t.Fatalf("%s: Set: %v", name, err)
		}

		clock = baseTime.Add(2 * time.Minute)
		if _, found, _ := jar.Get(ctx, "short"); found {
			t.Errorf("%s: expired entry still readable", name)
		}
		removed, err := jar.Sweep(ctx)
		if err != nil || removed != 1 {
			t.Errorf("%s: Sweep = %d, %v; want 1", name, removed, err)
		}
		if _, found, _ := jar.Get(ctx, "long"); !found {
			t.Errorf("%s: live entry lost", name)
		}
	}
}

func TestLoadDropsInvalidAndCorrupt(t *testing.T) {
	ctx := context.Background()
	jar, err := NewFileJar(filepath.Join(t.TempDir(), "jar.json"))
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}
	b := testBook(t, jar)

	payload := `[{"email":"ok@example.test","timestamp":"2026-05-01T10:00:00Z"},{"email":"","timestamp":"2026-05-01T10:00:00Z"},{"email":"nots@example.test"}]`
	if err := jar.Set(ctx, DefaultCookieName, []byte(payload), baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Load(ctx)
	if err != nil || len(got) != 1 || got[0].Address != "ok@example.test" {
		t.Fatalf("Load = %+v, %v", got, err)
	}

	if err := jar.Set(ctx, DefaultCookieName, []byte("{broken"), baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = b.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("corrupt Load = %+v, %v", got, err)
	}
}

type brokenJar struct{ FileJar }

func (*brokenJar) Set(context.Context, string, []byte, time.Time) error {
	return fmt.Errorf("read-only filesystem")
}

func TestSaveFailureIsStorageError(t *testing.T) {
	b := testBook(t, &brokenJar{FileJar{entries: map[string]fileEntry{}, now: time.Now}})
	err := b.Save(context.Background(), makeRecords(1, baseTime))
	if !apperror.Is(err, apperror.KindStorage) {
		t.Fatalf("err = %v, want StorageError", err)
	}
}
