package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"emotive.arpa/agent/inference"
	"emotive.arpa/agent/parse"
)

func TestEnvironment_String(t *testing.T) {
	tests := []struct {
		env      Environment
		expected string
	}{
		{EnvironmentDevelopment, "development"},
		{EnvironmentProduction, "production"},
	}

	for _, tt := range tests {
		t.Run(string(tt.env), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.env.String())
		})
	}
}

func TestIsEnvironment(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"development", true},
		{"production", true},
		{"Development", true},
		{"PRODUCTION", true},
		{"test", false},
		{"", false},
		{"dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsEnvironment(tt.input))
		})
	}
}

func TestDefault(t *testing.T) {
	assert.Equal(t, "default", Default("", "default"))
	assert.Equal(t, "value", Default("value", "default"))
	assert.Equal(t, 42, Default(0, 42))
	assert.Equal(t, 10, Default(10, 42))
	assert.Equal(t, time.Second, Default(time.Duration(0), time.Second))
}

func TestNewConfig_Defaults(t *testing.T) {
	config, err := newConfig(configOpts{Version: "1.0.0", BuildTime: "now"})
	require.NoError(t, err)

	assert.Equal(t, EnvironmentProduction, config.Environment)
	assert.Empty(t, config.DataDir)
	assert.False(t, config.WatchTopics)

	assert.Equal(t, inference.Config{
		Host:    inference.DefaultHost,
		Port:    inference.DefaultPort,
		Model:   inference.DefaultModel,
		Timeout: inference.DefaultTimeout,
		Backend: inference.BackendGenerate,
	}, config.Inference)

	assert.Equal(t, parse.Strict, config.Conversation.Policy)
	assert.Equal(t, "127.0.0.1:11434", config.Conversation.ServiceAddr)
	assert.Equal(t, "llama3.2", config.Conversation.Model)
}

func TestNewConfig(t *testing.T) {
	dir := t.TempDir()
	config, err := newConfig(configOpts{
		Environment:   "Development",
		DataDir:       dir,
		Host:          "ollama.local",
		Port:          8080,
		Model:         "mistral",
		Timeout:       time.Minute,
		Backend:       "chat",
		RateLimit:     2,
		ParsePolicy:   "LENIENT",
		ListTopics:    true,
		LearnKeywords: true,
		Overlap:       true,
		ServerURL:     "http://localhost:4200",
	})
	require.NoError(t, err)

	assert.Equal(t, EnvironmentDevelopment, config.Environment)
	assert.Equal(t, dir, config.DataDir)
	assert.Equal(t, inference.BackendChat, config.Inference.Backend)
	assert.Equal(t, 2.0, config.Inference.RateLimit)
	assert.Equal(t, time.Minute, config.Inference.Timeout)
	assert.Equal(t, parse.Lenient, config.Conversation.Policy)
	assert.True(t, config.Conversation.ListTopics)
	assert.True(t, config.Conversation.LearnKeywords)
	assert.True(t, config.Conversation.Overlap)
	assert.Equal(t, "ollama.local:8080", config.Conversation.ServiceAddr)
	assert.Equal(t, "mistral", config.Conversation.Model)
	assert.Equal(t, "http://localhost:4200", config.Server.ServerURL)
}

func TestNewConfig_RelativePaths(t *testing.T) {
	config, err := newConfig(configOpts{DataDir: "data", TopicsFile: "topics.yaml", WatchTopics: true})
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(config.DataDir))
	assert.True(t, filepath.IsAbs(config.TopicsFile))
	assert.Equal(t, "topics.yaml", filepath.Base(config.TopicsFile))
	assert.True(t, config.WatchTopics)
}

func TestNewConfig_Invalid(t *testing.T) {
	_, err := newConfig(configOpts{Backend: "grpc"})
	assert.ErrorContains(t, err, "unknown backend")

	_, err = newConfig(configOpts{ParsePolicy: "fuzzy"})
	assert.ErrorContains(t, err, "unknown parse policy")
}

func runWithFlags(t *testing.T, args ...string) *cli.Command {
	t.Helper()
	var parsed *cli.Command
	cmd := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			parsed = cmd
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
	require.NotNil(t, parsed)
	return parsed
}

func TestBuildOpts_MakeConfig(t *testing.T) {
	buildOpts := BuildOpts{BuildVersion: "test-version", BuildTime: "test-time"}

	cmd := runWithFlags(t,
		"--env", "production",
		"--model", "phi3",
		"--port", "9999",
		"--parse-policy", "lenient",
		"--learn-keywords",
		"--timeout", "30s",
	)

	config, err := buildOpts.MakeConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "test-version", config.Version)
	assert.Equal(t, "test-time", config.BuildTime)
	assert.Equal(t, EnvironmentProduction, config.Environment)
	assert.Equal(t, "phi3", config.Inference.Model)
	assert.Equal(t, 9999, config.Inference.Port)
	assert.Equal(t, 30*time.Second, config.Inference.Timeout)
	assert.Equal(t, parse.Lenient, config.Conversation.Policy)
	assert.True(t, config.Conversation.LearnKeywords)
	assert.True(t, config.Conversation.ListTopics)
}

func TestBuildOpts_MakeConfig_Defaults(t *testing.T) {
	cmd := runWithFlags(t)

	config, err := BuildOpts{}.MakeConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "dev", config.Version)
	assert.Equal(t, "unknown", config.BuildTime)
	assert.Equal(t, EnvironmentDevelopment, config.Environment)
	assert.Equal(t, "127.0.0.1:11434", config.Conversation.ServiceAddr)
	assert.Equal(t, inference.BackendGenerate, config.Inference.Backend)
	assert.Equal(t, "http://localhost:4200", config.Server.ServerURL)
}

func TestBuildOpts_MakeConfig_Environment(t *testing.T) {
	t.Setenv("INFERENCE_MODEL", "gemma")
	t.Setenv("LEARN_KEYWORDS", "true")

	config, err := BuildOpts{}.MakeConfig(runWithFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "gemma", config.Inference.Model)
	assert.True(t, config.Conversation.LearnKeywords)
}

func TestBuildOpts_MakeConfig_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emotive.yaml")
	content := "host: file.local\nport: 9999\nmodel: gemma\nparse-policy: lenient\nlearn-keywords: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("INFERENCE_HOST", "env.local")

	cmd := runWithFlags(t, "--config-file", path, "--port", "7777")

	config, err := BuildOpts{}.MakeConfig(cmd)
	require.NoError(t, err)

	// Command line beats the environment, which beats the file.
	assert.Equal(t, 7777, config.Inference.Port)
	assert.Equal(t, "env.local", config.Inference.Host)
	assert.Equal(t, "gemma", config.Inference.Model)
	assert.Equal(t, parse.Lenient, config.Conversation.Policy)
	assert.True(t, config.Conversation.LearnKeywords)
	assert.Equal(t, "env.local:7777", config.Conversation.ServiceAddr)
}

func TestBuildOpts_MakeConfig_MissingConfigFile(t *testing.T) {
	cmd := &cli.Command{
		Name:           "test",
		Flags:          Flags(),
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Action:         func(context.Context, *cli.Command) error { return nil },
	}
	err := cmd.Run(context.Background(), []string{"test", "--config-file", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "invalid config file")
}

func TestFlags_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"log level", []string{"--log-level", "verbose"}},
		{"environment", []string{"--env", "staging"}},
		{"backend", []string{"--backend", "grpc"}},
		{"parse policy", []string{"--parse-policy", "fuzzy"}},
		{"port", []string{"--port", "70000"}},
		{"timeout", []string{"--timeout", "0s"}},
		{"rate limit", []string{"--rate-limit=-1"}},
		{"server url", []string{"--server-url", "localhost"}},
		{"topics file", []string{"--topics-file", "/does/not/exist.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cli.Command{
				Name:           "test",
				Flags:          Flags(),
				ExitErrHandler: func(context.Context, *cli.Command, error) {},
				Action:         func(context.Context, *cli.Command) error { return nil },
			}
			err := cmd.Run(context.Background(), append([]string{"test"}, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestValidateDirectoryInput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, validateDirectoryInput(dir, 0755))
	assert.DirExists(t, dir)

	assert.Error(t, validateDirectoryInput("", 0755))
	assert.Error(t, validateDirectoryInput(filepath.Join(t.TempDir(), "missing", "data"), 0755))
}

func TestValidateURLInput(t *testing.T) {
	assert.NoError(t, validateURLInput("http://localhost:4200"))
	assert.Error(t, validateURLInput(""))
	assert.Error(t, validateURLInput("localhost"))
	assert.Error(t, validateURLInput("http://localhost"))
}
