// Package artifact persists a trained model together with the scaler it was
// trained against, and refuses to load a pair that does not belong together.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"prilythic/internal/domain"
	"prilythic/internal/forest"
	"prilythic/internal/preprocess"
)

// Artifact file names inside a bundle directory.
const (
	ManifestFile = "manifest.json"
	ModelFile    = "model.json"
	ScalerFile   = "scaler.json"
)

// ErrArtifactMismatch is returned when model and scaler come from different runs.
// It wraps domain.ErrSchemaMismatch.
var ErrArtifactMismatch = fmt.Errorf("model and scaler are not a matched pair: %w", domain.ErrSchemaMismatch)

// Manifest describes a bundle directory.
type Manifest struct {
	RunID             string    `json:"run_id"`
	Variant           string    `json:"variant"`
	CreatedAt         time.Time `json:"created_at"`
	SchemaFingerprint string    `json:"schema_fingerprint"`
	Columns           int       `json:"columns"`
	Trees             int       `json:"trees"`
}

// Bundle is a model/scaler pair sharing one run id.
type Bundle struct {
	Manifest Manifest
	Model    *forest.RandomForest
	Scaler   *preprocess.ScalerState
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewBundle pairs a fitted model with its scaler.
func NewBundle(runID, variant string, createdAt time.Time, model *forest.RandomForest, scaler *preprocess.ScalerState) (*Bundle, error) {
	if model == nil || scaler == nil {
		return nil, errors.New("bundle needs both model and scaler")
	}
	if model.NFeatures != scaler.Width() {
		return nil, fmt.Errorf("%w: model has %d features, scaler has %d columns",
			ErrArtifactMismatch, model.NFeatures, scaler.Width())
	}
	return &Bundle{
		Manifest: Manifest{
			RunID:             runID,
			Variant:           variant,
			CreatedAt:         createdAt.UTC(),
			SchemaFingerprint: scaler.Schema.Fingerprint(),
			Columns:           scaler.Width(),
			Trees:             len(model.Trees),
		},
		Model:  model,
		Scaler: scaler,
	}, nil
}

// Schema returns the feature schema of the pair.
func (b *Bundle) Schema() *domain.FeatureSchema {
	return &b.Scaler.Schema
}

// Predict scales one schema-ordered raw row and runs the model on it.
func (b *Bundle) Predict(raw []float64) (float64, error) {
	x, err := b.Scaler.TransformVector(raw)
	if err != nil {
		return 0, err
	}
	return b.Model.PredictRow(x), nil
}

// modelEnvelope and scalerEnvelope stamp each file with the run it belongs to.
type modelEnvelope struct {
	RunID             string               `json:"run_id"`
	SchemaFingerprint string               `json:"schema_fingerprint"`
	Model             *forest.RandomForest `json:"model"`
}

type scalerEnvelope struct {
	RunID             string                  `json:"run_id"`
	SchemaFingerprint string                  `json:"schema_fingerprint"`
	Scaler            *preprocess.ScalerState `json:"scaler"`
}

// Staged is a bundle written to a temporary sibling of its target directory
// and not yet visible to readers of that directory.
type Staged struct {
	dir   string
	tmp   string
	runID string
	done  bool
}

// Stage writes the bundle next to dir without touching dir itself. The caller
// must either Publish or Discard the result.
func Stage(dir string, b *Bundle) (*Staged, error) {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact parent: %w", err)
	}
	tmp, err := os.MkdirTemp(parent, ".artifact-*")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact dir: %w", err)
	}

	files := []struct {
		name string
		v    any
	}{
		{ModelFile, modelEnvelope{b.Manifest.RunID, b.Manifest.SchemaFingerprint, b.Model}},
		{ScalerFile, scalerEnvelope{b.Manifest.RunID, b.Manifest.SchemaFingerprint, b.Scaler}},
		{ManifestFile, b.Manifest},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(tmp, f.name), f.v); err != nil {
			os.RemoveAll(tmp)
			return nil, err
		}
	}
	return &Staged{dir: dir, tmp: tmp, runID: b.Manifest.RunID}, nil
}

// Publish replaces the target directory with the staged bundle. On failure
// the previous bundle, if any, is put back.
func (s *Staged) Publish() error {
	if s.done {
		return errors.New("staged artifacts already published or discarded")
	}
	s.done = true
	defer os.RemoveAll(s.tmp)

	var backup string
	if _, err := os.Stat(s.dir); err == nil {
		backup = s.dir + ".old-" + s.runID
		if err := os.Rename(s.dir, backup); err != nil {
			return fmt.Errorf("move previous artifacts aside: %w", err)
		}
	}
	if err := os.Rename(s.tmp, s.dir); err != nil {
		if backup != "" {
			_ = os.Rename(backup, s.dir)
		}
		return fmt.Errorf("publish artifacts: %w", err)
	}
	if backup != "" {
		_ = os.RemoveAll(backup)
	}
	return nil
}

// Discard removes the staged files. It is a no-op after Publish.
func (s *Staged) Discard() {
	if s.done {
		return
	}
	s.done = true
	os.RemoveAll(s.tmp)
}

// Save writes the bundle to dir. A failed save never leaves a partial pair
// behind and keeps the previous bundle in place.
func Save(dir string, b *Bundle) error {
	staged, err := Stage(dir, b)
	if err != nil {
		return err
	}
	return staged.Publish()
}

// Load reads and cross-checks a bundle. A missing directory or file is
// domain.ErrInputNotFound; files from different runs are ErrArtifactMismatch.
func Load(dir string) (*Bundle, error) {
	var manifest Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, err
	}
	var me modelEnvelope
	if err := readJSON(filepath.Join(dir, ModelFile), &me); err != nil {
		return nil, err
	}
	var se scalerEnvelope
	if err := readJSON(filepath.Join(dir, ScalerFile), &se); err != nil {
		return nil, err
	}

	if me.RunID != manifest.RunID || se.RunID != manifest.RunID {
		return nil, fmt.Errorf("%w: manifest %s, model %s, scaler %s",
			ErrArtifactMismatch, manifest.RunID, me.RunID, se.RunID)
	}
	if me.Model == nil || se.Scaler == nil {
		return nil, fmt.Errorf("artifact %s is incomplete", dir)
	}
	if err := se.Scaler.Validate(); err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	fp := se.Scaler.Schema.Fingerprint()
	if fp != manifest.SchemaFingerprint || me.SchemaFingerprint != manifest.SchemaFingerprint {
		return nil, fmt.Errorf("%w: schema fingerprint differs", ErrArtifactMismatch)
	}

	model := me.Model
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if model.NFeatures != se.Scaler.Width() {
		return nil, fmt.Errorf("%w: model has %d features, scaler has %d columns",
			ErrArtifactMismatch, model.NFeatures, se.Scaler.Width())
	}

	return &Bundle{Manifest: manifest, Model: model, Scaler: se.Scaler}, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrInputNotFound, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
