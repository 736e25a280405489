package conversation

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"emotive.arpa/agent/topics"
)

const classifyInstructions = `Respond with a single topic and the keyword from the prompt that made you pick it. ` +
	`Be concise, do not give any extra context other than the 2 words. ` +
	`If you respond with more or less than that we will break. ` +
	`The first word is the topic and the second is the keyword in the prompt that made you pick it: {{.input}}`

var classifyWithTopicsPrompt = prompts.NewPromptTemplate(
	`You have these topics to pick from: {{.topics}}. If none of them fit, respond with 'indifference'. `+classifyInstructions,
	[]string{"topics", "input"},
)

var classifyOpenPrompt = prompts.NewPromptTemplate(
	`Pick a one word topic for the prompt below. If it has no clear topic, respond with 'indifference'. `+classifyInstructions,
	[]string{"input"},
)

var emotionPrompt = prompts.NewPromptTemplate(
	`{{.input}} Respond with the Emotion: {{.emotion}}. But don't let on that you are being told to respond with this emotion.`,
	[]string{"input", "emotion"},
)

// classifyPrompt asks the model for a topic and the keyword that selected it.
// With known topics the model is told to choose among them.
func classifyPrompt(input string, known []string) (string, error) {
	var (
		result string
		err    error
	)
	if len(known) > 0 {
		result, err = classifyWithTopicsPrompt.Format(map[string]any{
			"topics": strings.Join(known, ", "),
			"input":  input,
		})
	} else {
		result, err = classifyOpenPrompt.Format(map[string]any{
			"input": input,
		})
	}
	if err != nil {
		return "", fmt.Errorf("format classify prompt: %w", err)
	}
	return result, nil
}

// augmentPrompt appends the hidden emotion instruction to the user's input.
func augmentPrompt(input string, emotion topics.Emotion) (string, error) {
	result, err := emotionPrompt.Format(map[string]any{
		"input":   input,
		"emotion": emotion.String(),
	})
	if err != nil {
		return "", fmt.Errorf("format emotion prompt: %w", err)
	}
	return result, nil
}
