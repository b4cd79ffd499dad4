package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easeaico/companion/internal/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the companion on stdin",
		Long:  "Reads one message per line and prints the companion's reply. An empty line is skipped and /quit exits.",
		Run:   runChat,
	}

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.close()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return
		}
		if line == "" {
			fmt.Print("> ")
			continue
		}

		reply, err := a.manager.Respond(ctx, types.Turn{
			ConversationID: conversationID,
			Content:        line,
			Role:           types.RoleUser,
		})
		switch {
		case ctx.Err() != nil:
			return
		case types.IsValidation(err):
			fmt.Fprintf(os.Stderr, "invalid message: %v\n", err)
		case err != nil:
			exitErr("respond", err)
		case reply.Blocked:
			fmt.Printf("[blocked] %s\n", strings.Join(reply.Verdict.Warnings, "; "))
		default:
			fmt.Println(reply.Text)
			for _, m := range reply.Media {
				fmt.Printf("  [%s %.2f] %s\n", m.Item.Kind, m.Score, m.Item.Caption)
			}
		}
		fmt.Print("> ")
	}
	if err := scanner.Err(); err != nil {
		exitErr("read stdin", err)
	}
}
