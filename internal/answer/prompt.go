package answer

import (
	"fmt"
	"strings"
)

// SourceURL is the BNB page that publishes the euro adoption Q&A.
const SourceURL = "https://www.bnb.bg/AboutUs/PressOffice/POAccessionToTheEuroArea/POAEFIQuestionsAndAnswers/index.htm"

// Refusal is the reply for questions that are not about the euro.
const Refusal = "Извинете, но мога да отговарям само на въпроси относно еврото."

// SystemPrompt instructs the model how to answer from the grounding payload.
var SystemPrompt = fmt.Sprintf(`You are an expert at the adoption of the Euro in Bulgaria. You will get questions from Bulgarian citizens and you will answer them based on the latest information available.

Below each question you receive the closest official Q-and-A documents from the Bulgarian National Bank, as well as the closest articles of the Bulgarian National Bank law.
When responding, you will always state that the source of information is the Bulgarian National Bank and you will provide the source - %s for the Q-and-A and point to the names (not the indices) of the questions that provided the information or the respective article of the law.

In case the sources are not sufficient to answer the question, say so instead of guessing.

If the question is not about the Euro adoption, you will respond with "%s"`, SourceURL, Refusal)

const (
	questionHeading = "## User question: "
	answerHeading   = "### Your answer (according to your instructions):"
)

// BuildPrompt places the user question above the grounding sections and
// ends with the answer heading the system prompt refers to.
func BuildPrompt(query, grounding string) string {
	var b strings.Builder
	b.WriteString(questionHeading)
	b.WriteString(query)
	b.WriteString("\n\n")
	if grounding != "" {
		b.WriteString(grounding)
		b.WriteString("\n\n")
	}
	b.WriteString(answerHeading)
	b.WriteString("\n")
	return b.String()
}

// ParsePrompt splits a prompt produced by BuildPrompt back into the
// question and the grounding sections.
func ParsePrompt(prompt string) (query, grounding string) {
	rest, ok := strings.CutPrefix(prompt, questionHeading)
	if !ok {
		return strings.TrimSpace(prompt), ""
	}
	query, rest, _ = strings.Cut(rest, "\n")
	rest, _, _ = strings.Cut(rest, answerHeading)
	return strings.TrimSpace(query), strings.TrimSpace(rest)
}
