package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easeaico/companion/internal/types"
)

func init() {
	processCmd := &cobra.Command{
		Use:   "process [message]",
		Short: "Analyze a message without generating a reply",
		Args:  cobra.MinimumNArgs(1),
		Run:   runProcess,
	}

	validateCmd := &cobra.Command{
		Use:   "validate [reply]",
		Short: "Check a candidate reply against the personality and the context",
		Args:  cobra.MinimumNArgs(1),
		Run:   runValidate,
	}

	moderateCmd := &cobra.Command{
		Use:   "moderate [text]",
		Short: "Screen text and log the verdict",
		Args:  cobra.MinimumNArgs(1),
		Run:   runModerate,
	}

	RootCmd.AddCommand(processCmd, validateCmd, moderateCmd)
}

func runProcess(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	res, err := a.manager.ProcessMessage(cmd.Context(), types.Turn{
		ConversationID: conversationID,
		Content:        strings.Join(args, " "),
		Role:           types.RoleUser,
	})
	if err != nil {
		exitErr("process", err)
	}

	printResult(res, func() {
		if res.Blocked {
			fmt.Printf("blocked: %s\n", strings.Join(res.Verdict.Warnings, "; "))
			return
		}
		fmt.Printf("emotion:   %s (%.2f)\n", res.Emotion.Primary, res.Emotion.Valence)
		fmt.Printf("mood:      %s\n", res.Mood)
		fmt.Printf("strategy:  %s\n", res.Strategy)
		fmt.Printf("candidate: %s\n", res.Candidate)
	})
}

func runValidate(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	v, err := a.manager.ValidateResponse(cmd.Context(), conversationID, strings.Join(args, " "))
	if err != nil {
		exitErr("validate", err)
	}

	printResult(v, func() {
		if v.IsConsistent {
			fmt.Println("consistent")
			return
		}
		fmt.Printf("inconsistent: %s\n", v.Reason)
	})
}

func runModerate(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	verdict, err := a.manager.ModerateContent(cmd.Context(), conversationID, strings.Join(args, " "))
	if err != nil {
		exitErr("moderate", err)
	}

	printResult(verdict, func() {
		fmt.Printf("allowed: %t score: %.2f\n", verdict.IsAllowed, verdict.ModerationScore)
		for _, w := range verdict.Warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println(verdict.FilteredContent)
	})
}
