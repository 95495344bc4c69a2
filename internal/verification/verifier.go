// Package verification checks persisted model/scaler pairs against the
// training run records that produced them.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"prilythic/internal/artifact"
	"prilythic/internal/domain"
	"prilythic/internal/forest"
	"prilythic/internal/storage"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between recorded and persisted values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // value recorded with the training run
	Actual   any    // value found in the artifact directory
}

// VerificationResult contains the result of verifying one artifact directory.
type VerificationResult struct {
	Dir               string
	RunID             string
	Match             bool              // true if all fields match
	Divergences       []FieldDivergence // list of divergent fields
	MeanRowPrediction float64           // prediction on the scaler's mean row
}

// VerificationReport contains results for every artifact directory under a root.
type VerificationReport struct {
	TotalBundles     int
	MatchedBundles   int
	DivergentBundles int
	Results          []VerificationResult
}

// Verifier loads bundles from disk and compares them with stored runs.
type Verifier struct {
	runs storage.TrainingRunStore
}

// NewVerifier creates a verifier backed by the training run store.
func NewVerifier(runs storage.TrainingRunStore) *Verifier {
	return &Verifier{runs: runs}
}

// VerifyDir verifies the bundle in dir. The bundle is loaded twice and the
// mean row prediction of both copies must agree, so a model whose serialized
// form does not reproduce its predictions is reported as divergent.
func (v *Verifier) VerifyDir(ctx context.Context, dir string) (*VerificationResult, error) {
	b, err := artifact.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	run, err := v.runs.GetByID(ctx, b.Manifest.RunID)
	if err != nil {
		return nil, fmt.Errorf("training run %s: %w", b.Manifest.RunID, err)
	}

	result := &VerificationResult{Dir: dir, RunID: b.Manifest.RunID}
	result.Divergences = CompareRun(run, b)

	meanRow := append([]float64(nil), b.Scaler.Mean...)
	first, err := b.Predict(meanRow)
	if err != nil {
		return nil, fmt.Errorf("mean row prediction: %w", err)
	}
	again, err := artifact.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", dir, err)
	}
	second, err := again.Predict(meanRow)
	if err != nil {
		return nil, fmt.Errorf("mean row prediction: %w", err)
	}
	if !floatEquals(first, second) {
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field:    "MeanRowPrediction",
			Expected: first,
			Actual:   second,
		})
	}

	result.MeanRowPrediction = first
	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyAll verifies every bundle directory directly under root.
// Directories without a manifest are skipped.
func (v *Verifier) VerifyAll(ctx context.Context, root string) (*VerificationReport, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: artifacts root %s", domain.ErrInputNotFound, root)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifacts root: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, artifact.ManifestFile)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)

	report := &VerificationReport{}
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := v.VerifyDir(ctx, dir)
		if err != nil {
			return nil, err
		}
		report.TotalBundles++
		if res.Match {
			report.MatchedBundles++
		} else {
			report.DivergentBundles++
		}
		report.Results = append(report.Results, *res)
	}
	return report, nil
}

// CompareRun compares a stored training run with the bundle it wrote.
func CompareRun(run *domain.TrainingRun, b *artifact.Bundle) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual any) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if run.RunID != b.Manifest.RunID {
		add("RunID", run.RunID, b.Manifest.RunID)
	}
	if run.Variant != b.Manifest.Variant {
		add("Variant", run.Variant, b.Manifest.Variant)
	}
	if run.SchemaHash != b.Manifest.SchemaFingerprint {
		add("SchemaHash", run.SchemaHash, b.Manifest.SchemaFingerprint)
	}

	schema := b.Schema()
	if run.LagHorizon != schema.LagHorizon {
		add("LagHorizon", run.LagHorizon, schema.LagHorizon)
	}
	if run.RollingWindow != schema.RollingWindow {
		add("RollingWindow", run.RollingWindow, schema.RollingWindow)
	}

	var params forest.Params
	if err := json.Unmarshal([]byte(run.Params), &params); err != nil {
		add("Params", run.Params, "unparseable")
	} else {
		params.Workers = b.Model.Params.Workers
		if params != b.Model.Params {
			add("Params", params, b.Model.Params)
		}
		if params.NEstimators != len(b.Model.Trees) {
			add("Trees", params.NEstimators, len(b.Model.Trees))
		}
	}

	// Recorded importances must match the model's at the same column.
	importances := b.Model.FeatureImportances()
	for _, fi := range run.TopImportances {
		i := schema.Index(fi.Feature)
		if i < 0 || i >= len(importances) {
			add("Importance."+fi.Feature, fi.Importance, "missing column")
			continue
		}
		if !floatEquals(fi.Importance, importances[i]) {
			add("Importance."+fi.Feature, fi.Importance, importances[i])
		}
	}

	return divergences
}

// floatEquals compares two floats within tolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
