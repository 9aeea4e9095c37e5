package ai

import "fmt"

// RelationSystemPrompt asks the model for a single related word.
const RelationSystemPrompt = "You are a helpful assistant that suggests a single word related to the source via the given relation. Respond only with the word."

// RelationPrompt builds the user message for a relation lookup.
func RelationPrompt(source, relation string) string {
	return fmt.Sprintf("Source: %s, Relation: %s", source, relation)
}

// RelationMessages is the message list sent for a relation lookup. The
// system prompt travels as a GenerateOption.
func RelationMessages(source, relation string) []ChatMessage {
	return []ChatMessage{
		{Role: "user", Message: RelationPrompt(source, relation)},
	}
}
