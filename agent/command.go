package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"emotive.arpa/agent/conversation"
)

var errNoPrompt = errors.New("a prompt is required")

type askCommandFlags struct {
	Prompt string
	JSON   bool
}

func newAskCommandFlags(cmd *cli.Command) *askCommandFlags {
	return &askCommandFlags{
		Prompt: strings.Join(cmd.Args().Slice(), " "),
		JSON:   cmd.Bool("json"),
	}
}

func newAskCommand(s *Agent) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Run a single prompt through the full cycle",
		ArgsUsage: "<prompt>",
		Action:    cmdWithAgent(ask, s),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the turn as JSON",
			},
		},
	}
}

func ask(ctx context.Context, cmd *cli.Command, s *Agent) error {
	f := newAskCommandFlags(cmd)
	if strings.TrimSpace(f.Prompt) == "" {
		return cli.Exit(errNoPrompt, 2)
	}

	res, err := s.orchestrator.Turn(ctx, f.Prompt)
	if err != nil {
		s.log.Debug("Turn failed.", zap.Error(err))
		s.orchestrator.PrintFailure(err)
		return cli.Exit("", 1)
	}
	if f.JSON {
		return writeJSON(s, res)
	}
	s.orchestrator.PrintResult(res)
	return nil
}

type classifyCommandFlags struct {
	Prompt string
	JSON   bool
}

func newClassifyCommandFlags(cmd *cli.Command) *classifyCommandFlags {
	return &classifyCommandFlags{
		Prompt: strings.Join(cmd.Args().Slice(), " "),
		JSON:   cmd.Bool("json"),
	}
}

func newClassifyCommand(s *Agent) *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Show the topic, keyword and emotion for a prompt without replying or learning",
		ArgsUsage: "<prompt>",
		Action:    cmdWithAgent(classify, s),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the classification as JSON",
			},
		},
	}
}

func classify(ctx context.Context, cmd *cli.Command, s *Agent) error {
	f := newClassifyCommandFlags(cmd)
	if strings.TrimSpace(f.Prompt) == "" {
		return cli.Exit(errNoPrompt, 2)
	}

	res, err := s.orchestrator.Classify(ctx, f.Prompt)
	if err != nil {
		s.log.Debug("Classification failed.", zap.Error(err))
		s.orchestrator.PrintFailure(err)
		return cli.Exit("", 1)
	}
	if f.JSON {
		return writeJSON(s, res)
	}
	printf(s, "Topic: %s\n", res.Topic)
	printf(s, "Keyword: %s\n", res.Keyword)
	printf(s, "Emotion: %s\n", res.Emotion)
	return nil
}

func newTopicsCommand(s *Agent) *cli.Command {
	return &cli.Command{
		Name:   "topics",
		Usage:  "List emotions and their topics, including learned ones",
		Action: cmdWithAgent(listTopics, s),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the table as JSON",
			},
		},
	}
}

func listTopics(ctx context.Context, cmd *cli.Command, s *Agent) error {
	entries := s.table.Entries()
	if cmd.Bool("json") {
		return writeJSON(s, map[string]any{"emotions": entries})
	}
	for _, e := range entries {
		printf(s, "%s: %s\n", e.Emotion, strings.Join(e.Topics, ", "))
	}
	return nil
}

type historyCommandFlags struct {
	Limit int
	JSON  bool
}

func newHistoryCommandFlags(cmd *cli.Command) *historyCommandFlags {
	return &historyCommandFlags{
		Limit: cmd.Int("limit"),
		JSON:  cmd.Bool("json"),
	}
}

func newHistoryCommand(s *Agent) *cli.Command {
	return &cli.Command{
		Name:   "history",
		Usage:  "Show recent turns stored in the data directory",
		Action: cmdWithAgent(history, s),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of turns to show",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the turns as JSON",
			},
		},
	}
}

func history(ctx context.Context, cmd *cli.Command, s *Agent) error {
	f := newHistoryCommandFlags(cmd)
	if s.history == nil {
		return cli.Exit(errors.New("history requires --data-dir"), 2)
	}

	turns, err := s.history.Recent(ctx, f.Limit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if f.JSON {
		if turns == nil {
			turns = []conversation.Result{}
		}
		return writeJSON(s, turns)
	}
	for _, t := range turns {
		printf(s, "[%s] %s\n", t.CreatedAt.Format(time.DateTime), t.Input)
		printf(s, "  Topic: %s  Emotion: %s\n", t.Topic, t.Emotion)
		printf(s, "  Response: %s\n", t.Reply)
	}
	return nil
}

func newServeCommand(serve *bool) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the conversation cycle over HTTP",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			*serve = true
			return nil
		},
	}
}

func writeJSON(s *Agent, v any) error {
	enc := json.NewEncoder(s.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(s *Agent, format string, args ...any) {
	_, _ = fmt.Fprintf(s.Out, format, args...)
}
