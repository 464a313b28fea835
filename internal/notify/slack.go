package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/slack-go/slack"

	"github.com/rewired-gh/trfret/internal/models"
)

// slackAPI is the part of slack.Client the notifier uses.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Slack posts run summaries to a channel.
type Slack struct {
	api       slackAPI
	channelID string
}

// NewSlack creates a Slack notifier for a bot token.
func NewSlack(botToken, channelID string) *Slack {
	return &Slack{api: slack.New(botToken), channelID: channelID}
}

// Notify posts the summary and uploads the workbook, if one was written.
func (s *Slack) Notify(ctx context.Context, run *models.Run, workbook string) error {
	text := formatSlack(run)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Binding analysis complete", false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
	if _, _, err := s.api.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	); err != nil {
		return fmt.Errorf("failed to post Slack message: %w", err)
	}

	if workbook == "" {
		return nil
	}
	fi, err := os.Stat(workbook)
	if err != nil {
		return fmt.Errorf("failed to stat workbook: %w", err)
	}
	if _, err := s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:     workbook,
		FileSize: int(fi.Size()),
		Filename: filepath.Base(workbook),
		Channel:  s.channelID,
		Title:    fmt.Sprintf("Run %s", run.ID),
	}); err != nil {
		return fmt.Errorf("failed to upload workbook to Slack: %w", err)
	}
	return nil
}

func formatSlack(run *models.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%d replicates, %d points)\n", run.Dataset.Path, run.Dataset.ReplicateCount, run.Dataset.DatapointCount)
	for _, line := range fitLines(run) {
		fmt.Fprintf(&b, "• `%s`\n", line)
	}
	return b.String()
}
