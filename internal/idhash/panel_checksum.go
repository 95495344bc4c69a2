package idhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputePanelChecksum computes a deterministic checksum of a wide panel.
// Formula: SHA256(header \n row_1 \n ... row_n), cells terminated by 0x1f.
// Returns hex-encoded hash (64 characters).
func ComputePanelChecksum(header []string, rows [][]string) string {
	h := sha256.New()
	writeRecord := func(rec []string) {
		for _, cell := range rec {
			h.Write([]byte(cell))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{'\n'})
	}
	writeRecord(header)
	for _, row := range rows {
		writeRecord(row)
	}
	return hex.EncodeToString(h.Sum(nil))
}
