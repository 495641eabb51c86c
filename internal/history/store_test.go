package history

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/bus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if v, err := GetSchemaVersion(db); err != nil || v != 0 {
		t.Fatalf("fresh db: version %d, err %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("expected version %d, got %d", schemaVersion, v)
	}
}

func TestSplitSQL(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"CREATE TABLE t (id INT)", 1},
		{"CREATE TABLE t1 (id INT); CREATE TABLE t2 (id INT)", 2},
		{"  CREATE TABLE t (id INT)  ;  ", 1},
	}
	for _, tt := range tests {
		if got := splitSQL(tt.input); len(got) != tt.want {
			t.Errorf("splitSQL(%q): expected %d statements, got %d", tt.input, tt.want, len(got))
		}
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, sender := range []string{"+1", "+2", "+1"} {
		_, err := s.SaveTranscript(ctx, Record{
			Channel:    "whatsapp",
			Sender:     sender,
			Language:   "en-US",
			Text:       "text " + sender,
			Confidence: 0.8,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	all, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Error("records should be newest first")
	}
	if all[0].ID == "" || all[0].Quality != "good" {
		t.Errorf("expected generated id and derived quality, got %+v", all[0])
	}

	mine, err := s.Recent(ctx, "+1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 records for +1, got %d", len(mine))
	}

	limited, _ := s.Recent(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("limit not applied, got %d", len(limited))
	}
}

func TestSaveTranscript_ClampsConfidence(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if _, err := s.SaveTranscript(ctx, Record{Channel: "twilio", Sender: "+1", Language: "he-IL", Confidence: 1.7}); err != nil {
		t.Fatal(err)
	}
	recs, _ := s.Recent(ctx, "", 1)
	if len(recs) != 1 || recs[0].Confidence != 1 || recs[0].Quality != "excellent" {
		t.Errorf("unexpected record %+v", recs)
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SaveTranscript(ctx, Record{Channel: "whatsapp", Sender: "+1", Language: "en-US", CreatedAt: time.Now().Add(-100 * 24 * time.Hour)})
	s.SaveTranscript(ctx, Record{Channel: "whatsapp", Sender: "+1", Language: "en-US"})
	s.SaveFailure(ctx, Failure{Channel: "whatsapp", Sender: "+1", Stage: "media", CreatedAt: time.Now().Add(-100 * 24 * time.Hour)})

	n, err := s.Prune(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows pruned, got %d", n)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Transcripts != 1 || st.Failures != 0 {
		t.Errorf("unexpected stats after prune: %+v", st)
	}
}

func TestAttach(t *testing.T) {
	s := testStore(t)
	eb := bus.NewEventBus(testLogger())
	detach := s.Attach(eb)

	eb.Emit(bus.Event{
		Type:   bus.EventTranscriptionCompleted,
		Source: "telegram",
		Payload: map[string]any{
			bus.KeySender:       "42",
			bus.KeyMessageID:    "7",
			bus.KeyLanguage:     "he-IL",
			bus.KeyText:         "shalom",
			bus.KeyConfidence:   0.95,
			bus.KeyQuality:      "excellent",
			bus.KeyDuration:     2.5,
			bus.KeyProcessingMs: int64(340),
		},
	})
	eb.Emit(bus.Event{
		Type:   bus.EventTranscriptionFailed,
		Source: "telegram",
		Payload: map[string]any{
			bus.KeySender: "42",
			bus.KeyStage:  "convert",
			bus.KeyError:  "no audio stream",
		},
	})

	ctx := context.Background()
	recs, err := s.Recent(ctx, "42", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(recs))
	}
	r := recs[0]
	if r.Channel != "telegram" || r.Text != "shalom" || r.ProcessingTimeMs != 340 || r.AudioDurationSeconds != 2.5 {
		t.Errorf("unexpected record %+v", r)
	}

	fails, err := s.RecentFailures(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(fails) != 1 || fails[0].Stage != "convert" {
		t.Errorf("unexpected failures %+v", fails)
	}

	detach()
	eb.Emit(bus.Event{Type: bus.EventTranscriptionCompleted, Source: "telegram", Payload: map[string]any{bus.KeySender: "42"}})
	if st, _ := s.Stats(ctx); st.Transcripts != 1 {
		t.Errorf("detached store should not record, got %d transcripts", st.Transcripts)
	}
}
