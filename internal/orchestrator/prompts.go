package orchestrator

import (
	"fmt"
	"strings"

	"github.com/conclave-ai/conclave/internal/council"
)

// Prompt framing for each session phase. The persona voice arrives as
// the system prompt; these are the per-turn instructions.

func openingPrompt(topic string, mode council.Mode) string {
	switch mode {
	case council.ModeProposal:
		return fmt.Sprintf("The Council convenes to consider the following motion: %s\n\nProvide a brief opening statement framing the motion for debate.", topic)
	case council.ModePrediction:
		return fmt.Sprintf("The Council convenes to forecast: %s\n\nProvide a brief opening statement framing what the Council must estimate.", topic)
	case council.ModeInquiry:
		return fmt.Sprintf("The Council is addressed with the following inquiry:\n\n%s\n\nProvide a brief framing of the question for the Council.", topic)
	default:
		return fmt.Sprintf("The Council convenes to discuss: %s\n\nProvide a brief opening statement framing the discussion for the Council.", topic)
	}
}

func contributionPrompt(topic string, mode council.Mode, round int, economy bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The Council is discussing: %s\n\n", topic)

	switch mode {
	case council.ModeResearch:
		fmt.Fprintf(&b, "This is analysis round %d. Examine the topic from your perspective, identify open gaps, and build on or challenge prior contributions.", round)
	case council.ModeSwarm:
		b.WriteString("Work the task independently from your perspective and report your result.")
	case council.ModeSwarmCoding:
		b.WriteString("Produce your implementation approach for the task, including concrete code where appropriate.")
	default:
		fmt.Fprintf(&b, "This is debate round %d. Provide your perspective on the topic in 2-3 paragraphs, engaging with what has been said.", round)
	}

	if economy {
		b.WriteString(" Be brief: a short paragraph at most.")
	}
	return b.String()
}

func ballotPrompt(topic string) string {
	return fmt.Sprintf(`The debate on the motion has concluded: %s

Cast your vote. Reply with exactly these labeled lines:
VOTE: YEA, NAY, or ABSTAIN
CONFIDENCE: a number from 0 to 10
REASON: one sentence explaining your vote`, topic)
}

func predictionPrompt(topic string) string {
	return fmt.Sprintf(`The Council must forecast: %s

Give your individual prediction. Reply with exactly these labeled lines:
OUTCOME: the outcome you consider most likely, in a few words
PROBABILITY: your probability for that outcome, 0-100
TIMELINE: when you expect resolution
REASONING: one or two sentences supporting your estimate`, topic)
}

func reconciliationPrompt(topic string) string {
	return fmt.Sprintf("The Council is split on: %s\n\nAgreement is too low to resolve the motion. Identify the core points of disagreement and propose common ground for a further round of debate.", topic)
}

func synthesisPrompt(s *council.Session) string {
	var b strings.Builder

	switch s.Mode {
	case council.ModeProposal:
		fmt.Fprintf(&b, "The Council has voted on the motion: %s\n\n", s.Topic)
		if s.Vote != nil {
			fmt.Fprintf(&b, "The tally: %d yea, %d nay, %d abstain; outcome %s (%s).\n\n",
				s.Vote.Yeas, s.Vote.Nays, s.Vote.Abstains, s.Vote.Outcome, s.Vote.ConsensusLabel)
		}
		b.WriteString("Deliver the final ruling of the Council, acknowledging the minority position.")
	case council.ModePrediction:
		fmt.Fprintf(&b, "The Council has forecast: %s\n\n", s.Topic)
		if s.Prediction != nil {
			fmt.Fprintf(&b, "The ensemble estimate is %.1f%% for %q (uncertainty %s).\n\n",
				s.Prediction.FinalProbability, s.Prediction.Outcome, s.Prediction.Uncertainty)
		}
		b.WriteString("Deliver the final prediction of the Council with the key considerations behind it.")
	case council.ModeSwarm, council.ModeSwarmCoding:
		fmt.Fprintf(&b, "The Council has worked in parallel on: %s\n\n", s.Topic)
		b.WriteString(transcriptDigest(s))
		b.WriteString("\nConsolidate the individual results into a single coherent deliverable.")
	default:
		fmt.Fprintf(&b, "The Council has discussed: %s\n\n", s.Topic)
		b.WriteString(transcriptDigest(s))
		b.WriteString("\nProvide a synthesis of the Council's discussion, highlighting consensus points and disagreements.")
	}
	return b.String()
}

// transcriptDigest flattens councilor contributions for synthesis
// prompts, the way the original deliberation loop fed its speaker.
func transcriptDigest(s *council.Session) string {
	var b strings.Builder
	for _, m := range s.Transcript {
		if m.Author == council.AuthorSystem || m.Author == council.AuthorPetitioner {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Author, m.Content)
	}
	return b.String()
}
