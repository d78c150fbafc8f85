// Package change decides whether newly captured text differs enough from
// the previous sample to be worth processing.
//
// OCR output is noisy: the same screen content re-renders constantly with
// lines reordered or slightly shifted. Comparing unordered sets of
// trimmed lines is cheap and robust to that reordering.
package change

import "strings"

// Result is the outcome of one change check.
type Result struct {
	ShouldProcess bool
	Ratio         float64
}

// Detector gates text on a change ratio threshold.
//
// Sub-threshold changes still replace the baseline so that a slow drift
// of many small edits cannot accumulate unforwarded forever, but they are
// not forwarded downstream.
type Detector struct {
	threshold float64
	baseline  string
}

// NewDetector creates a detector. Ratio values at or above threshold are
// forwarded.
func NewDetector(threshold float64) *Detector {
	return &Detector{threshold: threshold}
}

// SetThreshold applies a hot-reloaded threshold.
func (d *Detector) SetThreshold(threshold float64) {
	d.threshold = threshold
}

// Check compares new text against the current baseline, updates the
// baseline, and reports whether the text should be processed.
func (d *Detector) Check(newText string) Result {
	ratio := Ratio(d.baseline, newText)
	d.baseline = newText
	return Result{
		ShouldProcess: ratio >= d.threshold,
		Ratio:         ratio,
	}
}

// Ratio computes 1 - |A∩B| / max(|A|, |B|, 1) over the line sets of the
// two texts. Identical text yields 0; one side empty yields 1.
func Ratio(prev, next string) float64 {
	a := lineSet(prev)
	b := lineSet(next)

	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 || len(b) == 0 {
		return 1
	}

	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for line := range small {
		if _, ok := large[line]; ok {
			shared++
		}
	}

	return 1 - float64(shared)/float64(len(large))
}

// lineSet splits text into a set of trimmed, non-empty lines.
func lineSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			set[line] = struct{}{}
		}
	}
	return set
}
