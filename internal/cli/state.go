package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Show the context, personality and memory summaries",
		Run:   runState,
	}

	memoriesCmd := &cobra.Command{
		Use:   "memories [query]",
		Short: "Search the memories of the conversation",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMemories,
	}
	memoriesCmd.Flags().IntP("limit", "l", 5, "Max results")

	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Show the current topic and transition suggestions",
		Run:   runTopics,
	}

	interestsCmd := &cobra.Command{
		Use:   "interests",
		Short: "Show learned interests and preferences",
		Run:   runInterests,
	}

	nextCmd := &cobra.Command{
		Use:   "next",
		Short: "Suggest where the conversation should go next",
		Run:   runNext,
	}

	RootCmd.AddCommand(stateCmd, memoriesCmd, topicsCmd, interestsCmd, nextCmd)
}

func runState(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	snap, err := a.manager.ConversationState(cmd.Context(), conversationID)
	if err != nil {
		exitErr("state", err)
	}

	printResult(snap, func() {
		fmt.Println(snap.ContextSummary)
		fmt.Println(snap.PersonalitySnapshot)
		fmt.Println(snap.MemorySnapshot)
	})
}

func runMemories(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	found, err := a.manager.RelevantMemories(cmd.Context(), conversationID, strings.Join(args, " "), limit)
	if err != nil {
		exitErr("memories", err)
	}

	printResult(found, func() {
		for _, m := range found {
			fmt.Printf("[%.2f] %s\n", m.Importance, m.Content)
		}
	})
}

func runTopics(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	summary, err := a.manager.TopicSummary(cmd.Context(), conversationID)
	if err != nil {
		exitErr("topics", err)
	}

	printResult(summary, func() {
		fmt.Printf("current: %s\n", summary.CurrentTopic)
		fmt.Printf("history: %s\n", strings.Join(summary.RecentHistory, ", "))
		for _, s := range summary.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	})
}

func runInterests(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	summary, err := a.manager.InterestSummary(cmd.Context(), conversationID)
	if err != nil {
		exitErr("interests", err)
	}

	printResult(summary, func() {
		for _, in := range summary.TopInterests {
			fmt.Printf("%s/%s confidence %.2f\n", in.Category, in.Topic, in.Confidence)
		}
		for _, s := range summary.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	})
}

func runNext(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	next, err := a.manager.SuggestNextAction(cmd.Context(), conversationID)
	if err != nil {
		exitErr("next", err)
	}

	printResult(next, func() {
		fmt.Printf("%s: %s\n", next.Kind, next.Reason)
	})
}
