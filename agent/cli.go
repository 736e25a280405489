package agent

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"emotive.arpa/agent/config"
)

type cmdWithArgs func(ctx context.Context, cmd *cli.Command, s *Agent) error

// Wrap subcommands to inject the agent dependency
func cmdWithAgent(action cmdWithArgs, agent *Agent) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return action(ctx, cmd, agent)
	}
}

type setupWithArgs func(ctx context.Context, cmd *cli.Command) (context.Context, error)

func setup(setup setupWithArgs) cli.BeforeFunc {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		return setup(ctx, cmd)
	}
}

// NewCommandRoot returns the root command and a flag set when the HTTP server
// should be started after the command returns.
func NewCommandRoot(s *Agent) (*bool, *cli.Command) {
	opts := s.BuildOpts
	version := fmt.Sprintf("%s (%s)", opts.BuildVersion, opts.BuildTime)
	if opts.BuildTime == "" {
		version = opts.BuildVersion
	}
	serve := new(bool)
	return serve, &cli.Command{
		Name:      "emotive",
		Usage:     "Answer prompts with an emotion chosen from the prompt's topic",
		UsageText: "emotive [global options] [command [command options]]",
		Version:   version,
		Before:    setup(s.Setup), // runs before any command to initialize the agent
		Action:    cmdWithAgent(chat, s),
		Commands:  Commands(s, serve),
		Flags:     config.Flags(),
	}
}

func Commands(s *Agent, serve *bool) []*cli.Command {
	return []*cli.Command{
		newAskCommand(s),
		newClassifyCommand(s),
		newTopicsCommand(s),
		newHistoryCommand(s),
		newServeCommand(serve),
	}
}

func chat(ctx context.Context, cmd *cli.Command, s *Agent) error {
	if cmd.Args().Present() {
		return fmt.Errorf("unknown command %q", cmd.Args().First())
	}
	return s.Chat(ctx)
}
