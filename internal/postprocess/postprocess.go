package postprocess

import (
	"fmt"
	"sort"

	"github.com/ayusman/framepipe/internal/memmap"
	"github.com/ayusman/framepipe/internal/quant"
)

// DefaultTopN is the number of ranked classes kept in a Result.
const DefaultTopN = 3

// Config controls ranking.
type Config struct {
	Output quant.Params
	// TopN classes are kept in Result.Ranked.
	TopN int
	// Threshold marks a result confident when the top score reaches it.
	Threshold float32
}

// Class is one scored class.
type Class struct {
	Index int     `json:"index"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Result is the classification of one frame.
type Result struct {
	Top       Class   `json:"top"`
	Ranked    []Class `json:"ranked"`
	Confident bool    `json:"confident"`
}

// Postprocessor ranks the network output. It is used from the pipeline
// goroutine only.
type Postprocessor struct {
	cfg    Config
	labels *LabelTable
	scores []float32
	order  []int
}

// New returns a postprocessor for the label table.
func New(cfg Config, labels *LabelTable) (*Postprocessor, error) {
	if err := cfg.Output.Validate(); err != nil {
		return nil, err
	}
	if labels == nil {
		return nil, fmt.Errorf("%w: no label table", ErrLabels)
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	return &Postprocessor{cfg: cfg, labels: labels}, nil
}

// Labels returns the label table.
func (p *Postprocessor) Labels() *LabelTable { return p.labels }

// Run dequantizes the output tensor and ranks the classes by score. Ties
// keep the lower index first.
func (p *Postprocessor) Run(output *memmap.Buffer) Result {
	raw := output.Bytes()
	if cap(p.scores) < len(raw) {
		p.scores = make([]float32, len(raw))
		p.order = make([]int, len(raw))
	}
	scores, order := p.scores[:len(raw)], p.order[:len(raw)]
	p.cfg.Output.DequantizeAll(scores, raw)

	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	n := min(p.cfg.TopN, len(order))
	r := Result{Ranked: make([]Class, n)}
	for i := 0; i < n; i++ {
		idx := order[i]
		r.Ranked[i] = Class{Index: idx, Label: p.labels.Label(idx), Score: scores[idx]}
	}
	if n > 0 {
		r.Top = r.Ranked[0]
		r.Confident = r.Top.Score >= p.cfg.Threshold
	} else {
		r.Top = Class{Index: -1, Label: Unknown}
	}
	return r
}
