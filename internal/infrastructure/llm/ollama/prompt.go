package ollama

import "fmt"

func buildClassificationPrompt(question string) string {
	const maxSnippet = 2000
	snippet := question
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `Classify the question into exactly one of three categories.

factual: asks for a specific fact, definition or description of a single thing.
relational: asks how entities are connected, who works where, what belongs to what.
reasoning: asks to compare, explain causes, summarize across sources or draw conclusions.

Respond with a single word: factual, relational or reasoning. No other text.

Question:
` + snippet
}

func buildGroundedPrompt(question, contextText string) string {
	return fmt.Sprintf(`Answer the question using ONLY the context below.
Rules:
- Do not use any knowledge outside the context.
- Do not speculate or fill gaps.
- If the context does not contain the information needed, reply exactly: I cannot answer this question based on the provided context.
- Cite entities and relations from the context when they support the answer.

Context:
%s

Question:
%s

Answer:`, contextText, question)
}
