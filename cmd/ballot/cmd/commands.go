package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	votinghttp "commitreveal/contexts/governance/commit-reveal-voting/transport/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errNoActiveSession = errors.New("no active session: run 'ballot start' first or pass --session")

func (c *cli) newStartCommand() *cobra.Command {
	var supersedes string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new voting session",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			for _, key := range []string{cfgQuestion, cfgChoice1Label, cfgChoice2Label, cfgDuration} {
				if err := c.v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.state()
			if err != nil {
				return err
			}
			// One key per invocation keeps retried requests from opening a
			// second session.
			resp, err := c.client().StartVoting(cmd.Context(), uuid.NewString(), votinghttp.StartVotingRequest{
				Question:        c.v.GetString(cfgQuestion),
				Choice1Label:    c.v.GetString(cfgChoice1Label),
				Choice2Label:    c.v.GetString(cfgChoice2Label),
				DurationSeconds: c.v.GetInt64(cfgDuration),
				Supersedes:      strings.TrimSpace(supersedes),
			})
			if err != nil {
				return err
			}
			if err := st.SetSessionID(resp.SessionID); err != nil {
				return err
			}
			c.printf("Voting session %s started.\n", resp.SessionID)
			c.printf("%s [1] %s / [2] %s\n", resp.Question, resp.Choice1Label, resp.Choice2Label)
			c.printf("Commits are accepted until %s. Use 'ballot commit' to vote!\n", resp.CommitDeadline)
			return nil
		},
	}
	cmd.Flags().String(cfgQuestion, defaultQuestion, "question put to the voters")
	cmd.Flags().String(cfgChoice1Label, defaultChoice1Label, "label of choice 1")
	cmd.Flags().String(cfgChoice2Label, defaultChoice2Label, "label of choice 2")
	cmd.Flags().Int64(cfgDuration, defaultDuration, "length of the commit phase in seconds")
	cmd.Flags().StringVar(&supersedes, "supersedes", "", "handle of a fully revealed session this one replaces")
	return cmd
}

func (c *cli) newCommitCommand() *cobra.Command {
	var (
		sessionFlag string
		choiceFlag  string
	)
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit a hidden vote",
		Long: "Hashes the choice and secret locally and submits only the hash. Remember the secret for the reveal.\n" +
			"Without --secret the secret is prompted for, or read from stdin when it is not a terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, err := c.resolveSession(sessionFlag)
			if err != nil {
				return err
			}
			api := c.client()
			choice, err := c.resolveChoice(cmd, api, sessionID, choiceFlag)
			if err != nil {
				return err
			}
			secret, err := c.readSecret(cmd, "Enter a secret to hash with this vote. Remember this for vote reveal later!")
			if err != nil {
				return err
			}
			commitment, err := entities.HashVote(choice, secret)
			if err != nil {
				return err
			}
			resp, err := api.Commit(cmd.Context(), sessionID, commitment.String())
			if err != nil {
				if isCode(err, "wrong_phase") {
					return fmt.Errorf("commit rejected, check status to make sure voting is still in progress: %w", err)
				}
				return err
			}
			c.printf("Thanks! Vote was successfully committed as %s (vote #%d).\n", resp.CommitHash, resp.Position)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionFlag, "session", "", "session handle (default is the last started session)")
	cmd.Flags().StringVar(&choiceFlag, "choice", "", "choice number (1 or 2) or its label")
	cmd.Flags().String(secretFlag, "", "secret hashed with the vote (prompted for when omitted)")
	_ = cmd.MarkFlagRequired("choice")
	return cmd
}

func (c *cli) newRevealCommand() *cobra.Command {
	var (
		sessionFlag string
		choiceFlag  string
	)
	cmd := &cobra.Command{
		Use:   "reveal",
		Short: "Reveal a previously committed vote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, err := c.resolveSession(sessionFlag)
			if err != nil {
				return err
			}
			api := c.client()
			choice, err := c.resolveChoice(cmd, api, sessionID, choiceFlag)
			if err != nil {
				return err
			}
			secret, err := c.readSecret(cmd, "Now enter the secret used to hash this vote.")
			if err != nil {
				return err
			}
			resp, err := api.Reveal(cmd.Context(), sessionID, int(choice), secret)
			if err != nil {
				return err
			}
			c.printf("Vote for %s revealed. Tally: %d / %d (%d of %d revealed).\n",
				resp.ChoiceLabel,
				resp.Tally.Choice1,
				resp.Tally.Choice2,
				resp.VotesRevealed,
				resp.VotesCast,
			)
			if resp.Completed {
				c.printf("All votes have been revealed. Run 'ballot winner' for the result.\n")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionFlag, "session", "", "session handle (default is the last started session)")
	cmd.Flags().StringVar(&choiceFlag, "choice", "", "choice number (1 or 2) or its label")
	cmd.Flags().String(secretFlag, "", "secret used for the commit (prompted for when omitted)")
	_ = cmd.MarkFlagRequired("choice")
	return cmd
}

func (c *cli) newStatusCommand() *cobra.Command {
	var sessionFlag string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the phase and counters of the voting session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, err := c.resolveSession(sessionFlag)
			if errors.Is(err, errNoActiveSession) {
				c.printf("Current Phase: %s\n", phaseLabel(entities.PhasePreVoting))
				c.printf("To start the voting process, enter 'ballot start'\n")
				return nil
			}
			if err != nil {
				return err
			}
			status, err := c.client().Status(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			phase := entities.Phase(status.Phase)
			c.printf("Current Phase: %s\n", phaseLabel(phase))
			c.printf("Question: %s\n", status.Question)
			switch phase {
			case entities.PhaseVoting:
				c.printf("Time Left in this Period: %d seconds\n", status.TimeRemainingSeconds)
			case entities.PhaseRevealing:
				c.printf("Time Left in this Period: Indefinite until all votes revealed\n")
			}
			c.printf("Number of Votes Revealed: %d\n", status.VotesRevealed)
			c.printf("Number of Votes Committed: %d\n", status.VotesCast)
			if phase == entities.PhaseRevealed {
				if status.Tied {
					c.printf("All votes have been counted for. The vote is tied.\n")
				} else {
					c.printf("All votes have been counted for. Majority said.. %s\n", status.Winner)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionFlag, "session", "", "session handle (default is the last started session)")
	return cmd
}

func (c *cli) newWinnerCommand() *cobra.Command {
	var sessionFlag string
	cmd := &cobra.Command{
		Use:   "winner",
		Short: "Print the winning choice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, err := c.resolveSession(sessionFlag)
			if err != nil {
				return err
			}
			resp, err := c.client().Winner(cmd.Context(), sessionID)
			if err != nil {
				if isCode(err, "tie") {
					c.printf("The vote is tied.\n")
					return nil
				}
				return err
			}
			c.printf("Majority said.. %s (%d / %d)\n", resp.Label, resp.Tally.Choice1, resp.Tally.Choice2)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionFlag, "session", "", "session handle (default is the last started session)")
	return cmd
}

func (c *cli) newCommitsCommand() *cobra.Command {
	var sessionFlag string
	cmd := &cobra.Command{
		Use:   "commits",
		Short: "List commitments in commit order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessionID, err := c.resolveSession(sessionFlag)
			if err != nil {
				return err
			}
			resp, err := c.client().Commitments(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if len(resp.Items) == 0 {
				c.printf("No votes committed yet.\n")
				return nil
			}
			for _, item := range resp.Items {
				c.printf("%d\t%s\t%s\n", item.Position, item.CommitHash, item.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionFlag, "session", "", "session handle (default is the last started session)")
	return cmd
}

func (c *cli) resolveSession(flagValue string) (string, error) {
	if sessionID := strings.TrimSpace(flagValue); sessionID != "" {
		return sessionID, nil
	}
	st, err := c.state()
	if err != nil {
		return "", err
	}
	if sessionID := st.SessionID(); sessionID != "" {
		return sessionID, nil
	}
	return "", errNoActiveSession
}

// resolveChoice accepts "1", "2" or one of the session's labels.
func (c *cli) resolveChoice(cmd *cobra.Command, api *client, sessionID string, raw string) (entities.Choice, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		choice := entities.Choice(n)
		if !choice.Valid() {
			return entities.ChoiceNone, fmt.Errorf("choice must be 1 or 2, got %d", n)
		}
		return choice, nil
	}
	status, err := api.Status(cmd.Context(), sessionID)
	if err != nil {
		return entities.ChoiceNone, err
	}
	switch {
	case strings.EqualFold(raw, status.Choice1Label):
		return entities.ChoiceOne, nil
	case strings.EqualFold(raw, status.Choice2Label):
		return entities.ChoiceTwo, nil
	default:
		return entities.ChoiceNone, fmt.Errorf("choice %q matches neither %q nor %q", raw, status.Choice1Label, status.Choice2Label)
	}
}

func phaseLabel(phase entities.Phase) string {
	switch phase {
	case entities.PhasePreVoting:
		return "Pre-Voting"
	case entities.PhaseVoting:
		return "Voting"
	case entities.PhaseRevealing:
		return "Revealing"
	case entities.PhaseRevealed:
		return "Revealed"
	default:
		return string(phase)
	}
}
