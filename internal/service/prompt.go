package service

import "fmt"

const questionTemplate = "My name is: %s, and use this name to tell apart the questions. " +
	"No need to keep saying my name, or what you are going to do, just do it. " +
	"My question is: %s"

// FormatQuestion prefixes the question with the asking user's identity so one
// assistant can tell several users apart. Without a user the question is
// returned unmodified.
func FormatQuestion(user, question string) string {
	if user == "" {
		return question
	}
	return fmt.Sprintf(questionTemplate, user, question)
}
