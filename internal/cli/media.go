package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easeaico/companion/internal/types"
)

func init() {
	shareCmd := &cobra.Command{
		Use:   "share [caption]",
		Short: "Share a media item and print its fingerprint",
		Args:  cobra.MinimumNArgs(1),
		Run:   runShare,
	}
	shareCmd.Flags().StringP("kind", "k", types.MediaImage, "Media kind: image or voice")
	shareCmd.Flags().String("id", "", "Media id (generated when empty)")

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank shared media against the recent conversation",
		Run:   runRecommend,
	}
	recommendCmd.Flags().IntP("limit", "l", 0, "Max results (default: RECOMMENDATION_LIMIT)")

	interactCmd := &cobra.Command{
		Use:   "interact [media-id] [view|play|share|delete]",
		Short: "Record an interaction with a shared media item",
		Args:  cobra.ExactArgs(2),
		Run:   runInteract,
	}

	RootCmd.AddCommand(shareCmd, recommendCmd, interactCmd)
}

func runShare(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	id, _ := cmd.Flags().GetString("id")

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	fp, err := a.manager.ShareMedia(cmd.Context(), types.MediaItem{
		ID:             id,
		ConversationID: conversationID,
		Kind:           kind,
		Caption:        strings.Join(args, " "),
	})
	if err != nil {
		exitErr("share", err)
	}

	printResult(fp, func() {
		fmt.Printf("%s tags: %s categories: %s\n", fp.MediaID, strings.Join(fp.Tags, ", "), strings.Join(fp.Categories, ", "))
	})
}

func runRecommend(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	ranked, err := a.manager.Recommendations(cmd.Context(), conversationID, nil, nil, limit)
	if err != nil {
		exitErr("recommend", err)
	}

	printResult(ranked, func() {
		for _, m := range ranked {
			fmt.Printf("[%.2f] %s %s: %s\n", m.Score, m.Item.Kind, m.Item.ID, m.Item.Caption)
		}
	})
}

func runInteract(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	err = a.manager.RecordMediaInteraction(cmd.Context(), types.MediaInteraction{
		MediaID:        args[0],
		ConversationID: conversationID,
		Kind:           args[1],
	})
	if err != nil {
		exitErr("interact", err)
	}
	fmt.Println("ok")
}
