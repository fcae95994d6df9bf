package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden-file form of a scenario outcome. Field order
// is fixed so regenerated goldens diff cleanly.
type Snapshot struct {
	Scenario string   `json:"scenario"`
	Model    string   `json:"model"`
	Flavor   string   `json:"flavor"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	IDs      []int64  `json:"ids"`
}

// RunWithGolden runs a scenario and compares its outcome against
// testdata/<name>.golden. Regenerate with go test -update.
func (h *Harness) RunWithGolden(ctx context.Context, t *testing.T, s Scenario) {
	t.Helper()

	out, err := h.Run(ctx, s)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if err := h.Check(s, out); err != nil {
		t.Fatal(err)
	}

	snap := Snapshot{
		Scenario: s.Name,
		Model:    s.Model,
		Flavor:   s.Flavor,
		Valid:    out.Valid,
		Errors:   out.Errors,
		IDs:      out.IDs,
	}
	g := goldie.New(t)
	g.AssertJson(t, s.Name, snap)
}
