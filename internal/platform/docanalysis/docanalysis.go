// Package docanalysis produces the narrative summary stored with each lab
// result. Real document analysis is out of process; the canned summarizer
// stands in for it in development and tests.
package docanalysis

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
)

var ErrEmptyDocument = errors.New("docanalysis: empty document")

// Summarizer turns an uploaded lab document into a short narrative.
type Summarizer interface {
	Summarize(ctx context.Context, fileName string, content []byte) (string, error)
}

// SummarizerFunc adapts a plain function to Summarizer.
type SummarizerFunc func(ctx context.Context, fileName string, content []byte) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, fileName string, content []byte) (string, error) {
	return f(ctx, fileName, content)
}

var cannedSummaries = []string{
	"Lab results show normal glucose levels (95 mg/dL), cholesterol within acceptable range (180 mg/dL). Continue current medication regimen. Follow up in 3 months.",
	"Blood pressure readings indicate good control (120/80). Kidney function tests normal. Liver enzymes within range. Continue lifestyle modifications.",
	"Complete blood count shows no abnormalities. Hemoglobin levels optimal (14.2 g/dL). Iron levels adequate. No action required.",
	"Lipid panel reveals slight elevation in LDL cholesterol (145 mg/dL). Consider dietary modifications and increased exercise. Recheck in 6 weeks.",
	"Thyroid function tests normal. TSH levels within range (2.1 mIU/L). Continue current thyroid medication dosage.",
}

// Canned returns one of a fixed set of lab narratives. The choice depends
// only on the file name, so the same upload always gets the same summary.
type Canned struct{}

func NewCanned() *Canned { return &Canned{} }

func (c *Canned) Summarize(ctx context.Context, fileName string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", ErrEmptyDocument
	}
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(fileName))))
	return cannedSummaries[h.Sum32()%uint32(len(cannedSummaries))], nil
}

// Summaries exposes the canned narratives.
func Summaries() []string {
	out := make([]string, len(cannedSummaries))
	copy(out, cannedSummaries)
	return out
}
