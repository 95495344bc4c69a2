package verification

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"prilythic/internal/artifact"
	"prilythic/internal/domain"
	"prilythic/internal/pipeline"
	"prilythic/internal/storage"
	"prilythic/internal/storage/memory"
)

func trainBundle(t *testing.T, root string, runs storage.TrainingRunStore) *pipeline.Result {
	t.Helper()
	opts := pipeline.DefaultOptions()
	opts.Forest.NEstimators = 6
	opts.Forest.MaxDepth = 5
	opts.ArtifactDir = filepath.Join(root, "default")
	opts.ReportDir = ""

	res, err := pipeline.NewTrainer(opts).
		WithTable(pipeline.FixturePanel(36, 7), "fixtures").
		WithStores(nil, nil, runs, nil).
		Run(context.Background())
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	return res
}

func TestVerifyDir_Match(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	runs := memory.NewTrainingRunStore()
	res := trainBundle(t, root, runs)

	got, err := NewVerifier(runs).VerifyDir(ctx, filepath.Join(root, "default"))
	if err != nil {
		t.Fatalf("VerifyDir failed: %v", err)
	}
	if !got.Match {
		t.Errorf("expected match, got divergences %+v", got.Divergences)
	}
	if got.RunID != res.Run.RunID {
		t.Errorf("expected run %s, got %s", res.Run.RunID, got.RunID)
	}
}

func TestVerifyDir_TamperedRun(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	res := trainBundle(t, root, memory.NewTrainingRunStore())

	tampered := *res.Run
	tampered.LagHorizon = 2
	tampered.Params = `{"n_estimators":99}`
	runs := memory.NewTrainingRunStore()
	if err := runs.Insert(ctx, &tampered); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := NewVerifier(runs).VerifyDir(ctx, filepath.Join(root, "default"))
	if err != nil {
		t.Fatalf("VerifyDir failed: %v", err)
	}
	if got.Match {
		t.Fatal("expected divergences")
	}
	fields := map[string]bool{}
	for _, d := range got.Divergences {
		fields[d.Field] = true
	}
	for _, want := range []string{"LagHorizon", "Params", "Trees"} {
		if !fields[want] {
			t.Errorf("expected divergence on %s, got %+v", want, got.Divergences)
		}
	}
}

func TestVerifyDir_UnknownRun(t *testing.T) {
	root := t.TempDir()
	trainBundle(t, root, nil)

	_, err := NewVerifier(memory.NewTrainingRunStore()).VerifyDir(context.Background(), filepath.Join(root, "default"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyAll(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	runs := memory.NewTrainingRunStore()
	trainBundle(t, root, runs)

	// Not a bundle.
	if err := os.MkdirAll(filepath.Join(root, "scratch"), 0o755); err != nil {
		t.Fatal(err)
	}

	report, err := NewVerifier(runs).VerifyAll(ctx, root)
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if report.TotalBundles != 1 || report.MatchedBundles != 1 || report.DivergentBundles != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestVerifyAll_MissingRoot(t *testing.T) {
	_, err := NewVerifier(memory.NewTrainingRunStore()).VerifyAll(context.Background(), filepath.Join(t.TempDir(), "none"))
	if !errors.Is(err, domain.ErrInputNotFound) {
		t.Errorf("expected ErrInputNotFound, got %v", err)
	}
}

func TestCompareRun_Importances(t *testing.T) {
	root := t.TempDir()
	res := trainBundle(t, root, nil)

	b, err := artifact.Load(filepath.Join(root, "default"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	run := *res.Run
	run.TopImportances = append([]domain.FeatureImportance(nil), run.TopImportances...)
	run.TopImportances[0].Importance += 0.5

	divs := CompareRun(&run, b)
	if len(divs) != 1 || divs[0].Field != "Importance."+run.TopImportances[0].Feature {
		t.Errorf("expected one importance divergence, got %+v", divs)
	}
}
