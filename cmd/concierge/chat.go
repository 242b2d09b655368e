package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/atelierlabs/concierge"
	"github.com/atelierlabs/concierge/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Opens a REPL against a single session. Slash commands:
  /upload <file.csv>   register the session's dataset
  /state               print the raw workflow state
  /quit                exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		if tui.Interactive() {
			tui.PrintBanner(concierge.Version)
		}
		fmt.Printf("session: %s\n", sessionID)
		fmt.Println("Type a message, or /quit to exit.")

		render := tui.NewRenderer()
		reader := bufio.NewReader(os.Stdin)
		ctx := cmd.Context()

		for {
			fmt.Print("> ")
			line, err := reader.ReadString('\n')
			if err != nil {
				fmt.Println()
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch {
			case line == "/quit" || line == "/exit":
				fmt.Println("Bye!")
				return nil

			case line == "/state":
				state, err := app.store.Load(ctx, sessionID)
				if err != nil {
					fmt.Printf("no state yet: %v\n", err)
					continue
				}
				pretty, _ := json.MarshalIndent(state, "", "  ")
				fmt.Println(string(pretty))
				continue

			case strings.HasPrefix(line, "/upload "):
				path := strings.TrimSpace(strings.TrimPrefix(line, "/upload "))
				if err := uploadCSV(cmd, app, sessionID, path); err != nil {
					fmt.Printf("upload failed: %v\n", err)
					continue
				}
				// Advance the workflow through the normal routing path.
				line = "upload the data"
			}

			reply := app.svc.Router().HandleMessage(ctx, sessionID, line)
			out, err := render(tui.RenderReply(reply))
			if err != nil {
				out = tui.RenderReply(reply)
			}
			fmt.Print(out)
		}
	},
}

func uploadCSV(cmd *cobra.Command, app *app, sessionID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("malformed csv: %w", err)
	}
	if len(records) < 2 {
		return fmt.Errorf("csv needs a header row and at least one data row")
	}

	ds, err := app.loader.Put(cmd.Context(), sessionID, records[0], records[1:])
	if err != nil {
		return err
	}
	fmt.Printf("registered %q with %d columns and %d rows\n", path, len(ds.Columns), len(records)-1)
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session ID (default: a fresh UUID)")
}
