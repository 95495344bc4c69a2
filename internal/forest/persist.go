package forest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Save writes the forest as JSON. Float64 values round-trip exactly.
func (rf *RandomForest) Save(w io.Writer) error {
	if len(rf.Trees) == 0 {
		return errors.New("save forest: model not trained")
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(rf); err != nil {
		return fmt.Errorf("encode forest: %w", err)
	}
	return nil
}

// Load reads a forest written by Save and checks its structure.
func Load(r io.Reader) (*RandomForest, error) {
	var rf RandomForest
	if err := json.NewDecoder(r).Decode(&rf); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Validate checks that every tree is well formed for NFeatures inputs.
func (rf *RandomForest) Validate() error {
	if len(rf.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	if rf.NFeatures <= 0 {
		return errors.New("forest has no features")
	}
	for ti, t := range rf.Trees {
		if t == nil || len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				continue
			}
			if n.Feature >= rf.NFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid children", ti, ni)
			}
		}
	}
	return nil
}
