package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"raggate/model"
	"raggate/policy"
	"raggate/types"

	"github.com/pkoukk/tiktoken-go"
)

// RefusalAnswer is returned verbatim when the policy filter denies the input.
// No model or retrieval call happens on that path.
const RefusalAnswer = "I can't help with internal or secret information such as credentials, endpoints or source code. I'm happy to answer questions about the public product documentation instead."

const systemPolicy = `You are an assistant for public product documentation.
Answer only from the provided context snippets and cite each fact by its reference like [#1].
If asked for credentials, internal endpoints, source code or operational details, refuse and offer a public alternative.
If the snippets don't cover the question, say so instead of guessing.
Answer in the language of the question.`

// promptTokenBudget bounds the assembled prompt; snippets are dropped from
// the tail until the prompt fits.
const promptTokenBudget = 3000

// BuildPrompt assembles the generation prompt: every snippet tagged with its
// stable reference index and title, then the original question.
func BuildPrompt(question string, snippets []types.Snippet) string {
	var sb strings.Builder
	sb.WriteString("Context snippets:\n")
	if len(snippets) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, sn := range snippets {
		sb.WriteString(fmt.Sprintf("#%d [%s]\n%s\n\n", sn.Ref, sn.Title, sn.Text))
	}
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer using only the snippets above and cite them by reference.")
	return sb.String()
}

// CountTokens measures text with a gpt-3.5-turbo-compatible encoding.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Answer runs steps 6-8 of the chat flow: assemble the prompt, invoke the
// generator with the fixed system policy, sanitize and truncate the output.
// It returns the snippets that actually made it into the prompt so the caller
// can derive the source list from them.
func Answer(ctx context.Context, g model.GeneratorInterface, question string, snippets []types.Snippet, maxOutputChars int) (string, []types.Snippet, error) {
	start := time.Now()

	used := snippets
	prompt := BuildPrompt(question, used)
	// Token accounting is best-effort: if the encoding is unavailable the
	// prompt goes out untrimmed.
	if n, err := CountTokens(prompt); err == nil {
		for n > promptTokenBudget && len(used) > 1 {
			used = used[:len(used)-1]
			prompt = BuildPrompt(question, used)
			n, _ = CountTokens(prompt)
		}
		log.Printf("[AGENT] prompt size: %d tokens, %d snippets", n, len(used))
	}

	output, err := g.Generate(ctx, []model.Message{
		{Role: model.RoleSystem, Content: systemPolicy},
		{Role: model.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", nil, err
	}
	log.Printf("[AGENT] generation took %v", time.Since(start))

	output = policy.Sanitize(output)
	if maxOutputChars > 0 {
		if runes := []rune(output); len(runes) > maxOutputChars {
			output = string(runes[:maxOutputChars])
		}
	}
	return output, used, nil
}
