// Package postprocess turns the raw network output into ranked, labelled
// classification results.
package postprocess

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sigurn/crc16"
)

// Unknown is reported for class indices outside the label table.
const Unknown = "unknown"

var (
	// ErrLabels is returned for an unusable label table.
	ErrLabels = errors.New("invalid label table")
	// ErrChecksum is returned when the label table does not match its
	// recorded checksum.
	ErrChecksum = errors.New("label table checksum mismatch")
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// LabelTable is the ordered, immutable list of class names.
type LabelTable struct {
	names []string
	crc   uint16
}

// NewLabelTable builds a table from class names in output order.
func NewLabelTable(names []string) (*LabelTable, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrLabels)
	}
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, fmt.Errorf("%w: class %d has no name", ErrLabels, i)
		}
	}
	names = append([]string(nil), names...)
	return &LabelTable{
		names: names,
		crc:   crc16.Checksum([]byte(strings.Join(names, "\n")), crcTable),
	}, nil
}

// LoadLabels reads one class name per line, skipping blank lines.
func LoadLabels(path string) (*LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return NewLabelTable(names)
}

// Verify checks the table against a recorded CRC-16/CCITT-FALSE. Zero
// means no checksum was recorded.
func (t *LabelTable) Verify(want uint16) error {
	if want != 0 && want != t.crc {
		return fmt.Errorf("%w: have %#04x, want %#04x", ErrChecksum, t.crc, want)
	}
	return nil
}

// CRC returns the checksum of the table.
func (t *LabelTable) CRC() uint16 { return t.crc }

// Len returns the number of classes.
func (t *LabelTable) Len() int { return len(t.names) }

// Label returns the name of class i.
func (t *LabelTable) Label(i int) string {
	if i < 0 || i >= len(t.names) {
		return Unknown
	}
	return t.names[i]
}

// Names returns a copy of the class names.
func (t *LabelTable) Names() []string {
	return append([]string(nil), t.names...)
}
