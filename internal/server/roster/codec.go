package roster

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrSchema is returned when an artifact was written with another schema.
var ErrSchema = errors.New("unsupported roster schema")

// Encode renders the canonical artifact bytes. Equal tables always encode to
// identical bytes.
func Encode(t *Table) ([]byte, error) {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}
	return append(b, '\n'), nil
}

// Decode parses and validates an artifact.
func Decode(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	if t.Schema != SchemaID {
		return nil, fmt.Errorf("%w: %q", ErrSchema, t.Schema)
	}
	if t.Columns == nil {
		t.Columns = []Column{}
	}
	if t.Rows == nil {
		t.Rows = []Row{}
	}
	for i := range t.Rows {
		if t.Rows[i].Cells == nil {
			t.Rows[i].Cells = []int{}
		}
		if len(t.Rows[i].Cells) != len(t.Columns) {
			return nil, fmt.Errorf("decode roster: row %q has %d cells for %d columns",
				t.Rows[i].StudentID, len(t.Rows[i].Cells), len(t.Columns))
		}
	}
	return &t, nil
}

// Digest is the blake2b-256 hex digest of encoded artifact bytes.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
