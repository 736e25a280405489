// Package config turns command flags and files into the agent's configuration.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"emotive.arpa/agent/conversation"
	"emotive.arpa/agent/http"
	"emotive.arpa/agent/inference"
	"emotive.arpa/agent/parse"
)

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

func IsEnvironment(s string) bool {
	return environmentFromString(strings.ToLower(s)) != ""
}

func environmentFromString(s string) Environment {
	switch s {
	case EnvironmentDevelopment.String():
		return EnvironmentDevelopment
	case EnvironmentProduction.String():
		return EnvironmentProduction
	default:
		return ""
	}
}

// From LDFLAGS
type BuildOpts struct {
	BuildVersion     string
	BuildTime        string
	BuildEnvironment string
}

func (l BuildOpts) MakeConfig(cmd *cli.Command) (Config, error) {
	if l.BuildVersion == "" {
		l.BuildVersion = "dev"
	}
	if l.BuildTime == "" {
		l.BuildTime = "unknown"
	}
	opts := configOpts{
		Version:       l.BuildVersion,
		BuildTime:     l.BuildTime,
		LogLevel:      cmd.String("log-level"),
		Environment:   Default(cmd.String("env"), l.BuildEnvironment),
		DataDir:       cmd.String("data-dir"),
		Host:          cmd.String("host"),
		Port:          cmd.Int("port"),
		Model:         cmd.String("model"),
		Timeout:       cmd.Duration("timeout"),
		Backend:       cmd.String("backend"),
		RateLimit:     cmd.Float("rate-limit"),
		ParsePolicy:   cmd.String("parse-policy"),
		ListTopics:    cmd.Bool("list-topics"),
		LearnKeywords: cmd.Bool("learn-keywords"),
		Overlap:       cmd.Bool("overlap"),
		TopicsFile:    cmd.String("topics-file"),
		WatchTopics:   cmd.Bool("watch-topics"),
		ServerURL:     cmd.String("server-url"),
	}

	return newConfig(opts)
}

type configOpts struct {
	Version       string
	BuildTime     string
	LogLevel      string
	Environment   string
	DataDir       string
	Host          string
	Port          int
	Model         string
	Timeout       time.Duration
	Backend       string
	RateLimit     float64
	ParsePolicy   string
	ListTopics    bool
	LearnKeywords bool
	Overlap       bool
	TopicsFile    string
	WatchTopics   bool
	ServerURL     string
}

type Config struct {
	Version      string
	BuildTime    string
	LogLevel     string
	Environment  Environment
	DataDir      string // Empty keeps learned topics and history in memory only
	TopicsFile   string
	WatchTopics  bool
	Inference    inference.Config
	Conversation conversation.Config
	Server       http.Config
}

func newConfig(opts configOpts) (Config, error) {
	environment := environmentFromString(strings.ToLower(opts.Environment))
	if environment == "" {
		environment = EnvironmentProduction
	}

	backend := inference.Backend(Default(opts.Backend, inference.BackendGenerate.String()))
	if !slices.Contains(inference.Backends, backend) {
		return Config{}, fmt.Errorf("unknown backend %q", opts.Backend)
	}

	policy := parse.Strict
	if opts.ParsePolicy != "" {
		policy = parse.PolicyFromString(opts.ParsePolicy)
		if policy == "" {
			return Config{}, fmt.Errorf("unknown parse policy %q", opts.ParsePolicy)
		}
	}

	var dataDir string
	if opts.DataDir != "" {
		abs, err := filepath.Abs(opts.DataDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve data directory: %w", err)
		}
		dataDir = abs
	}

	topicsFile := opts.TopicsFile
	if topicsFile != "" {
		abs, err := filepath.Abs(topicsFile)
		if err != nil {
			return Config{}, fmt.Errorf("resolve topics file: %w", err)
		}
		topicsFile = abs
	}

	inferenceConfig := inference.Config{
		Host:      Default(opts.Host, inference.DefaultHost),
		Port:      Default(opts.Port, inference.DefaultPort),
		Model:     Default(opts.Model, inference.DefaultModel),
		Timeout:   Default(opts.Timeout, inference.DefaultTimeout),
		RateLimit: opts.RateLimit,
		Backend:   backend,
	}

	return Config{
		Version:     opts.Version,
		BuildTime:   opts.BuildTime,
		LogLevel:    opts.LogLevel,
		Environment: environment,
		DataDir:     dataDir,
		TopicsFile:  topicsFile,
		WatchTopics: opts.WatchTopics && topicsFile != "",
		Inference:   inferenceConfig,
		Conversation: conversation.Config{
			Policy:        policy,
			ListTopics:    opts.ListTopics,
			LearnKeywords: opts.LearnKeywords,
			Overlap:       opts.Overlap,
			ServiceAddr:   inferenceConfig.Addr(),
			Model:         inferenceConfig.Model,
		},
		Server: http.Config{
			ServerURL: opts.ServerURL,
		},
	}, nil
}

func Default[T comparable](val T, defaultVal T) T {
	var zero T
	if val == zero {
		return defaultVal
	}
	return val
}
