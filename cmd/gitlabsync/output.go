package gitlabsync

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/skaphos/gitlab-sync/internal/cliio"
	"github.com/skaphos/gitlab-sync/internal/engine"
	"github.com/skaphos/gitlab-sync/internal/termstyle"
)

var resultHeaders = []string{"PROJECT", "PATH", "PULL", "PUSH", "DETAIL"}

type jsonReport struct {
	Results []engine.Result `json:"results"`
	Summary engine.Summary  `json:"summary"`
}

func writeResultsJSON(cmd *cobra.Command, results []engine.Result) error {
	if results == nil {
		results = []engine.Result{}
	}
	return cliio.WriteJSON(cmd.OutOrStdout(), jsonReport{Results: results, Summary: engine.Summarize(results)})
}

func writeResultsTable(cmd *cobra.Command, results []engine.Result, cwd string, noHeaders bool) error {
	pathMax := cellLimit(cmd, 0, 40, 28)
	detailMax := cellLimit(cmd, 0, 40, 24)
	rows := lo.Map(results, func(res engine.Result, _ int) []string {
		pull, push := stageKinds(res)
		return []string{
			res.Project,
			truncateCell(displayPath(res.Path, cwd), pathMax),
			pull,
			push,
			truncateCell(resultDetail(res), detailMax),
		}
	})
	out := cmd.OutOrStdout()
	if err := cliio.WriteTable(out, true, noHeaders, resultHeaders, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, summaryLine(engine.Summarize(results)))
	return err
}

func stageKinds(res engine.Result) (string, string) {
	pull, push := "-", "-"
	if len(res.Outcomes) > 0 {
		pull = displayKind(res.Outcomes[0].Kind)
	}
	if len(res.Outcomes) > 1 {
		push = displayKind(res.Outcomes[1].Kind)
	}
	return pull, push
}

func displayKind(kind engine.OutcomeKind) string {
	return termstyle.Colorize(colorOutputEnabled, strings.ReplaceAll(string(kind), "_", " "), kindColor(kind))
}

func kindColor(kind engine.OutcomeKind) color.Attribute {
	switch {
	case kind.Failed():
		return termstyle.Error
	case kind.NeedsAttention():
		return termstyle.Warn
	case kind == engine.OutcomeSkippedArchived || kind == engine.OutcomeSkippedAbsent:
		return termstyle.Info
	default:
		return termstyle.Healthy
	}
}

// resultDetail explains the most relevant outcome in one line.
func resultDetail(res engine.Result) string {
	var parts []string
	for _, o := range res.Outcomes {
		switch {
		case o.Reason != "":
			parts = append(parts, o.Reason)
		case o.Kind == engine.OutcomePulled && o.FastForward:
			parts = append(parts, "fast-forward")
		case len(o.Fetched) > 0:
			parts = append(parts, fmt.Sprintf("%d refs fetched", len(o.Fetched)))
		case len(o.RefUpdates) > 0:
			parts = append(parts, fmt.Sprintf("%d refs pushed", len(o.RefUpdates)))
		}
	}
	if failed := lo.CountBy(res.Submodules, func(s engine.SubmoduleResult) bool { return s.Error != "" }); failed > 0 {
		parts = append(parts, fmt.Sprintf("%d submodules failed", failed))
	}
	return strings.Join(parts, "; ")
}

func displayPath(path, cwd string) string {
	if path == "" || cwd == "" {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func summaryLine(s engine.Summary) string {
	noun := "projects"
	if s.Total == 1 {
		noun = "project"
	}
	return fmt.Sprintf("%d %s, %d failed, %d need attention", s.Total, noun, s.Failed, s.Attention)
}
