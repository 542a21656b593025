package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return st
}

func TestInsertAndQueryAlerts(t *testing.T) {
	st := newTestStore(t)

	records := []AlertRecord{
		{TS: 100, Symbol: "INFY", Direction: "above", LastPrice: 101, Threshold: 100},
		{TS: 200, Symbol: "TCS", Direction: "below", LastPrice: 40, Threshold: 50},
		{TS: 300, Symbol: "INFY", Direction: "above", LastPrice: 105, Threshold: 100},
	}
	for _, rec := range records {
		if err := st.InsertAlert(rec); err != nil {
			t.Fatalf("insert alert: %v", err)
		}
	}

	all, err := st.QueryAlerts("", 0, 0)
	if err != nil {
		t.Fatalf("query alerts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(all))
	}
	if all[0].TS != 300 {
		t.Errorf("expected newest first, got ts=%d", all[0].TS)
	}

	infy, err := st.QueryAlerts("INFY", 0, 0)
	if err != nil {
		t.Fatalf("query alerts by symbol: %v", err)
	}
	if len(infy) != 2 {
		t.Fatalf("expected 2 INFY alerts, got %d", len(infy))
	}

	limited, err := st.QueryAlerts("", 1, 1)
	if err != nil {
		t.Fatalf("query alerts limit/offset: %v", err)
	}
	if len(limited) != 1 || limited[0].TS != 200 {
		t.Fatalf("expected the second-newest alert, got %+v", limited)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	st := newTestStore(t)

	token, err := st.LoadSession()
	if err != nil {
		t.Fatalf("load empty session: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token on fresh store, got %q", token)
	}

	if err := st.SaveSession("tok1"); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := st.SaveSession("tok2"); err != nil {
		t.Fatalf("overwrite session: %v", err)
	}

	token, err = st.LoadSession()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if token != "tok2" {
		t.Errorf("expected latest token tok2, got %q", token)
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store in nested dir: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("close store: %v", err)
	}
}
