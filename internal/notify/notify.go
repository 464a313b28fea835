// Package notify sends the fit summary of a completed run to chat services.
//
// Telegram and Slack are supported. Delivery failures are returned to the
// caller, which logs them; a failed notification never fails the run.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rewired-gh/trfret/internal/fitting"
	"github.com/rewired-gh/trfret/internal/models"
)

// Notifier delivers a run summary. workbook is the written artifact, or empty.
type Notifier interface {
	Notify(ctx context.Context, run *models.Run, workbook string) error
}

// Multi fans a notification out to every notifier, joining their errors.
type Multi []Notifier

// Notify calls every notifier in order.
func (m Multi) Notify(ctx context.Context, run *models.Run, workbook string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, run, workbook); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fitLines renders one plain line per fit, e.g. "simple: Kd = 4813 nM [95.2, 9530]".
func fitLines(run *models.Run) []string {
	var lines []string
	for _, fit := range run.Fits {
		if !fit.Succeeded() {
			lines = append(lines, fmt.Sprintf("%s: %s", fit.Model, fit.Status))
			continue
		}
		parts := make([]string, 0, len(fit.Parameters))
		for _, p := range fit.Parameters {
			unit := ""
			if p.Name == fitting.ParamKd {
				unit = " nM"
			}
			parts = append(parts, fmt.Sprintf("%s = %.4g%s [%.4g, %.4g]", p.Name, p.Value, unit, p.CILower, p.CIUpper))
		}
		lines = append(lines, fmt.Sprintf("%s: %s", fit.Model, strings.Join(parts, ", ")))
	}
	return lines
}
