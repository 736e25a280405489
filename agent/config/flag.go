package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	altsrcyaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"emotive.arpa/agent/inference"
	"emotive.arpa/agent/parse"
)

// Flags returns the global flags. Every flag but config-file may also be set
// from the environment or from the YAML file named by config-file, in that
// order of precedence after the command line.
func Flags() []cli.Flag {
	var configFile string
	sources := func(env, key string) cli.ValueSourceChain {
		return cli.NewValueSourceChain(
			cli.EnvVar(env),
			altsrcyaml.YAML(key, altsrc.NewStringPtrSourcer(&configFile)),
		)
	}

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config-file",
			Usage:       "YAML file providing defaults for the other flags",
			Sources:     cli.EnvVars("CONFIG_FILE"),
			Destination: &configFile,
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				if err := validateFileInput(v); err != nil {
					return cli.Exit(fmt.Errorf("invalid config file: %v", err), 2)
				}
				return nil
			},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level",
			Value:   "info",
			Sources: sources("LOG_LEVEL", "log-level"),
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				options := []string{"error", "warn", "info", "debug", "none"}
				if slices.Contains(options, strings.ToLower(v)) {
					return nil
				}
				return cli.Exit(fmt.Errorf("'log-level' must be %v. Received: %v", strings.Join(options, ", "), v), 2)
			},
		},
		&cli.StringFlag{
			Name:    "env",
			Usage:   "build environment description",
			Value:   "development",
			Sources: sources("ENVIRONMENT", "env"),
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				if IsEnvironment(v) {
					return nil
				}
				options := []string{EnvironmentDevelopment.String(), EnvironmentProduction.String()}
				return cli.Exit(fmt.Errorf("'env' must be %v. Received: %v", strings.Join(options, ", "), v), 2)
			},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Directory for learned topics and turn history, may be relative or absolute. Nothing is persisted when unset.",
			Sources: sources("DATA_DIR", "data-dir"),
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				if err := validateDirectoryInput(v, 0755); err != nil {
					return cli.Exit(fmt.Errorf("invalid data directory: %v", err), 2)
				}
				return nil
			},
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Ollama host",
			Value:   inference.DefaultHost,
			Sources: sources("INFERENCE_HOST", "host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Ollama port",
			Value:   inference.DefaultPort,
			Sources: sources("INFERENCE_PORT", "port"),
			Action: func(ctx context.Context, cmd *cli.Command, v int) error {
				if v < 1 || v > 65535 {
					return cli.Exit(fmt.Errorf("'port' must be between 1 and 65535. Received: %d", v), 2)
				}
				return nil
			},
		},
		&cli.StringFlag{
			Name:    "model",
			Usage:   "Model used for classification and replies",
			Value:   inference.DefaultModel,
			Sources: sources("INFERENCE_MODEL", "model"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Per-request timeout for the inference service",
			Value:   inference.DefaultTimeout,
			Sources: sources("INFERENCE_TIMEOUT", "timeout"),
			Action: func(ctx context.Context, cmd *cli.Command, v time.Duration) error {
				if v <= 0 {
					return cli.Exit(fmt.Errorf("'timeout' must be positive. Received: %v", v), 2)
				}
				return nil
			},
		},
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "Inference backend",
			Value:   inference.BackendGenerate.String(),
			Sources: sources("INFERENCE_BACKEND", "backend"),
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				if slices.Contains(inference.Backends, inference.Backend(v)) {
					return nil
				}
				return cli.Exit(fmt.Errorf("'backend' must be %v. Received: %v", joinStrings(inference.Backends), v), 2)
			},
		},
		&cli.FloatFlag{
			Name:    "rate-limit",
			Usage:   "Maximum inference requests per second, 0 for unlimited",
			Sources: sources("INFERENCE_RATE_LIMIT", "rate-limit"),
			Action: func(ctx context.Context, cmd *cli.Command, v float64) error {
				if v < 0 {
					return cli.Exit(fmt.Errorf("'rate-limit' must not be negative. Received: %v", v), 2)
				}
				return nil
			},
		},
		&cli.StringFlag{
			Name:    "parse-policy",
			Usage:   "How classification replies with the wrong number of words are handled",
			Value:   parse.Strict.String(),
			Sources: sources("PARSE_POLICY", "parse-policy"),
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				if parse.PolicyFromString(v) != "" {
					return nil
				}
				return cli.Exit(fmt.Errorf("'parse-policy' must be %v. Received: %v", joinStrings(parse.Policies), v), 2)
			},
		},
		&cli.BoolFlag{
			Name:    "list-topics",
			Usage:   "List the known topics in the classification prompt",
			Value:   true,
			Sources: sources("LIST_TOPICS", "list-topics"),
		},
		&cli.BoolFlag{
			Name:    "learn-keywords",
			Usage:   "Also record the keyword that selected a topic under the resolved emotion",
			Sources: sources("LEARN_KEYWORDS", "learn-keywords"),
		},
		&cli.BoolFlag{
			Name:    "overlap",
			Usage:   "Record topics while the reply is being generated",
			Sources: sources("OVERLAP", "overlap"),
		},
		&cli.StringFlag{
			Name:    "topics-file",
			Usage:   "YAML or JSON file replacing the built-in emotion topics",
			Sources: sources("TOPICS_FILE", "topics-file"),
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				if err := validateFileInput(v); err != nil {
					return cli.Exit(fmt.Errorf("invalid topics file: %v", err), 2)
				}
				return nil
			},
		},
		&cli.BoolFlag{
			Name:    "watch-topics",
			Usage:   "Merge new topics from the topics file when it changes",
			Sources: sources("WATCH_TOPICS", "watch-topics"),
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "Server URL",
			Value:   "http://localhost:4200",
			Sources: sources("SERVER_URL", "server-url"),
			Action: func(ctx context.Context, cmd *cli.Command, v string) error {
				if err := validateURLInput(v); err != nil {
					return cli.Exit(fmt.Errorf("invalid server URL: %v", err), 2)
				}
				return nil
			},
		},
	}
}

func joinStrings[T fmt.Stringer](values []T) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = v.String()
	}
	return strings.Join(s, ", ")
}

// Ensures the directory input is valid.
//
// The directory must either exist or the parent directory must exist.
// Will create if the directory doesn't exist.
func validateDirectoryInput(dir string, permissions os.FileMode) error {
	if dir == "" {
		return errors.New("directory is required")
	}
	parent := filepath.Dir(dir)
	if _, err := os.Stat(parent); err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, permissions); err != nil {
			return err
		}
	}
	return nil
}

// Ensures the file input is valid.
func validateFileInput(file string) error {
	if file == "" {
		return errors.New("file is required")
	}
	_, err := os.Stat(file)
	return err
}

func validateURLInput(input string) error {
	if input == "" {
		return errors.New("URL is required")
	}
	u, err := url.ParseRequestURI(input)
	if err != nil {
		return fmt.Errorf("invalid url '%v': %v", input, err)
	}
	host, _, err := net.SplitHostPort(u.Host)
	if err != nil || host == "" {
		return fmt.Errorf("invalid url '%v': %v", input, err)
	}
	return nil
}
