package orchestrator

import (
	"strconv"
	"strings"

	"github.com/conclave-ai/conclave/internal/forecast"
	"github.com/conclave-ai/conclave/internal/vote"
)

// Councilors are asked to annotate structured turns with labeled lines
// (VOTE:, CONFIDENCE:, OUTCOME:, PROBABILITY:, ...). Model output is
// unreliable, so parsing is line-oriented and forgiving: a missing or
// unparseable annotation degrades to a conservative default instead of
// failing the turn.

// parseBallot extracts a ballot from a voting turn. When no VOTE line is
// found the ballot defaults to ABSTAIN at confidence 5, so a rambling
// councilor still counts toward the tally.
func parseBallot(participantID string, weight float64, content string) vote.Ballot {
	ballot := vote.Ballot{
		ParticipantID: participantID,
		Choice:        vote.ChoiceAbstain,
		Confidence:    5,
		Weight:        weight,
	}

	for _, line := range strings.Split(content, "\n") {
		key, value, ok := labeledLine(line)
		if !ok {
			continue
		}
		switch key {
		case "VOTE":
			if choice, ok := vote.ParseChoice(value); ok {
				ballot.Choice = choice
			}
		case "CONFIDENCE":
			if f, err := strconv.ParseFloat(firstToken(value), 64); err == nil && f >= 0 && f <= 10 {
				ballot.Confidence = f
			}
		case "REASON":
			ballot.Reason = value
		}
	}
	return ballot
}

// parsePrediction extracts a point prediction from a forecast turn.
// Returns false when no PROBABILITY line parses; a prediction without a
// probability cannot join the ensemble.
func parsePrediction(participantID, content string) (forecast.Prediction, bool) {
	pred := forecast.Prediction{ParticipantID: participantID}
	found := false

	for _, line := range strings.Split(content, "\n") {
		key, value, ok := labeledLine(line)
		if !ok {
			continue
		}
		switch key {
		case "OUTCOME":
			pred.Outcome = value
		case "PROBABILITY":
			raw := strings.TrimSuffix(firstToken(value), "%")
			if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 0 && f <= 100 {
				pred.Probability = f
				found = true
			}
		case "TIMELINE":
			pred.Timeline = value
		case "REASONING":
			pred.Reasoning = value
		}
	}
	return pred, found
}

// labeledLine splits "KEY: value", tolerating leading markdown bullets
// and bold markers.
func labeledLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*# ")
	line = strings.ReplaceAll(line, "**", "")

	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToUpper(strings.TrimSpace(line[:idx]))
	value = strings.TrimSpace(line[idx+1:])
	return key, value, value != ""
}

func firstToken(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}
