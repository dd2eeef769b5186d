package audit

import (
	"strings"

	"github.com/obsidianstack/threadwork/pkg/types"
)

// AxeAudit reports one axe-core rule from the pre-computed Accessibility
// artifact.
type AxeAudit struct {
	meta Meta
}

// NewLabelContentNameMismatch returns the axe audit for visible labels that
// are missing from the accessible name.
func NewLabelContentNameMismatch() *AxeAudit {
	return &AxeAudit{meta: Meta{
		ID:           types.AuditLabelNameMismatch,
		Title:        "Elements with visible text labels have matching accessible names.",
		FailureTitle: "Elements with visible text labels do not have matching accessible names.",
		Description: "Visible text labels that do not match the accessible name can result in a " +
			"confusing experience for screen reader users.",
		RequiredArtifacts: []string{ArtifactAccessibility},
	}}
}

func (x *AxeAudit) Meta() Meta { return x.meta }

func (x *AxeAudit) Audit(a *Artifacts, c *Context) (*types.AuditResult, error) {
	m := x.meta
	if err := a.require(m.RequiredArtifacts...); err != nil {
		return errorResult(m, err.Error()), nil
	}
	acc := a.Accessibility

	for _, r := range acc.NotApplicable {
		if r.ID == m.ID {
			return finalize(m, &types.AuditResult{ScoreDisplayMode: types.DisplayNotApplicable}), nil
		}
	}
	for _, r := range acc.Incomplete {
		if r.ID != m.ID {
			continue
		}
		msg := "Unknown error"
		if r.Error != nil && r.Error.Message != "" {
			msg = r.Error.Message
		}
		return errorResult(m, "axe-core Error: "+msg), nil
	}

	var violation *AxeResult
	for i := range acc.Violations {
		if acc.Violations[i].ID == m.ID {
			violation = &acc.Violations[i]
			break
		}
	}

	res := &types.AuditResult{
		Score:            types.ScorePtr(1),
		ScoreDisplayMode: types.DisplayBinary,
	}
	if violation == nil {
		return finalize(m, res), nil
	}

	items := make([]types.Item, 0, len(violation.Nodes))
	for _, n := range violation.Nodes {
		items = append(items, types.Item{
			"node":        strings.Join(n.Target, " "),
			"snippet":     n.Snippet,
			"explanation": n.FailureSummary,
		})
	}
	res.Score = types.ScorePtr(0)
	res.Details = &types.Details{
		Type: "table",
		Headings: []types.Heading{
			{Key: "node", ValueType: "node", Label: "Failing Elements"},
			{Key: "explanation", ValueType: "text", Label: "Explanation"},
		},
		Items: items,
	}
	return finalize(m, res), nil
}
