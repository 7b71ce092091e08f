package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/orchestrator"
)

var conveneCmd = &cobra.Command{
	Use:   "convene <topic>",
	Short: "Convene a council session on a topic",
	Long: `Convene runs a full council session synchronously and prints the
outcome. The mode selects what the council produces:

  deliberation  open roundtable with a speaker synthesis (default)
  proposal      debate a motion and resolve it with a formal vote
  prediction    collect forecasts and produce an ensemble estimate
  inquiry       direct Q&A, one round
  research      deep multi-round analysis
  swarm         fan the task out to all councilors in parallel
  swarm_coding  swarm fan-out specialized for code generation

Interrupting with Ctrl-C stops the session at the next safe boundary;
in-flight responder calls are allowed to finish or time out.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvene,
}

var (
	conveneMode       string
	conveneCouncilors []string
	conveneRounds     int
	conveneParallel   int
	conveneEconomy    bool
	conveneJSON       bool
)

func init() {
	rootCmd.AddCommand(conveneCmd)

	conveneCmd.Flags().StringVarP(&conveneMode, "mode", "m", "deliberation", "session mode")
	conveneCmd.Flags().StringSliceVar(&conveneCouncilors, "councilors", nil, "persona keys to seat (default: speaker, technocrat, ethicist)")
	conveneCmd.Flags().IntVar(&conveneRounds, "rounds", 0, "debate rounds (0 = configured default)")
	conveneCmd.Flags().IntVar(&conveneParallel, "parallel", 0, "concurrent responder calls, 1-5 (0 = configured default)")
	conveneCmd.Flags().BoolVar(&conveneEconomy, "economy", false, "request shorter responses to cut token spend")
	conveneCmd.Flags().BoolVar(&conveneJSON, "json", false, "print the raw result envelope as JSON")
}

func runConvene(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := orchestrator.ConveneRequest{
		Topic:      args[0],
		Mode:       conveneMode,
		Councilors: conveneCouncilors,
	}
	// A configured roster file seats the council unless --councilors
	// picks personas explicitly.
	if len(conveneCouncilors) == 0 && len(a.roster) > 0 {
		req.Participants = a.roster
	}
	if conveneRounds > 0 || conveneParallel > 0 || conveneEconomy {
		settings := a.cfg.Settings()
		if conveneRounds > 0 {
			settings.DebateRounds = conveneRounds
		}
		if conveneParallel > 0 {
			settings.MaxConcurrentRequests = conveneParallel
		}
		if conveneEconomy {
			settings.EconomyMode = true
		}
		req.Settings = &settings
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First Ctrl-C stops the session cleanly; a second one aborts hard.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nstopping session at next safe boundary (Ctrl-C again to abort)")
			cancel()
			<-sig
			os.Exit(1)
		case <-ctx.Done():
		}
	}()

	if !conveneJSON {
		fmt.Printf("%s %s\n", titleStyle.Render("Convening council on:"), args[0])
	}

	env := a.orchestrator.Convene(ctx, req)

	if conveneJSON {
		out, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if env.Status == orchestrator.StatusError {
			os.Exit(1)
		}
		return nil
	}

	if env.Status == orchestrator.StatusError {
		fmt.Println(errorStyle.Render("session rejected:"))
		for _, fe := range env.Errors {
			fmt.Printf("  %s %s\n", errorStyle.Render("✗"), fe.Message)
		}
		os.Exit(1)
	}

	s, ok := env.Data.(*council.Session)
	if !ok {
		return fmt.Errorf("unexpected envelope payload %T", env.Data)
	}
	printSession(s)

	if len(env.Warnings) > 0 {
		fmt.Println()
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d warning(s):", len(env.Warnings))))
		for _, w := range env.Warnings {
			fmt.Printf("  %s %s\n", warnStyle.Render("!"), w)
		}
	}
	fmt.Println()
	fmt.Println(kv("Session", s.ID))
	return nil
}

// printSession renders a session transcript and its aggregates.
func printSession(s *council.Session) {
	fmt.Println(divider(70))
	fmt.Printf("%s  %s\n", titleStyle.Render(s.Topic), statusBadge(s.Status))
	fmt.Printf("%s  %s\n", kv("Mode", s.Mode), kv("Participants", participantList(s)))
	if s.Degraded {
		fmt.Println(warnStyle.Render("session completed in degraded form"))
	}
	fmt.Println(divider(70))

	for _, m := range s.Transcript {
		printMessage(m)
	}

	if s.Vote != nil {
		fmt.Println(divider(70))
		fmt.Printf("%s %s\n", labelStyle.Render("Vote:"), outcomeBadge(s.Vote.Outcome))
		fmt.Printf("  %d yea / %d nay / %d abstain  (weighted %.1f / %.1f / %.1f)\n",
			s.Vote.Yeas, s.Vote.Nays, s.Vote.Abstains,
			s.Vote.WeightedYeas, s.Vote.WeightedNays, s.Vote.WeightedAbstains)
		fmt.Printf("  consensus %.2f (%s), mean confidence %.1f\n",
			s.Vote.ConsensusScore, s.Vote.ConsensusLabel, s.Vote.MeanConfidence)
	}

	if s.Prediction != nil {
		fmt.Println(divider(70))
		fmt.Printf("%s %.1f%% — %s\n", labelStyle.Render("Forecast:"), s.Prediction.FinalProbability, s.Prediction.Outcome)
		fmt.Printf("  %.0f%% interval [%.1f, %.1f], uncertainty %s, method %s\n",
			s.Prediction.Interval.Level*100, s.Prediction.Interval.Lower, s.Prediction.Interval.Upper,
			s.Prediction.Uncertainty, s.Prediction.Method)
		if len(s.Prediction.Outliers) > 0 {
			fmt.Printf("  outliers: %s\n", strings.Join(s.Prediction.Outliers, ", "))
		}
	}

	if len(s.Dialectic) > 0 {
		fmt.Println(divider(70))
		fmt.Printf("%s %d round(s), synthesis confidence %.2f\n",
			labelStyle.Render("Dialectic:"), len(s.Dialectic), s.DialecticConfidence)
	}
}

// printMessage renders one transcript entry.
func printMessage(m council.Message) {
	ts := m.Timestamp.Format(time.Kitchen)
	switch m.Author {
	case council.AuthorSystem:
		fmt.Println(systemStyle.Render(fmt.Sprintf("[%s] %s", ts, m.Content)))
	default:
		fmt.Printf("%s %s\n", authorStyle.Render(m.Author+":"), firstLinePreview(m.Content))
		if rest := remainingLines(m.Content); rest != "" {
			fmt.Println(rest)
		}
	}
}

func firstLinePreview(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}

func remainingLines(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return strings.TrimRight(content[i+1:], "\n")
	}
	return ""
}

func participantList(s *council.Session) string {
	names := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Enabled {
			names = append(names, p.ID)
		}
	}
	return strings.Join(names, ", ")
}
