package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "whisper",
	Short: "Whisper CLI",
	Long:  "A CLI for sending and reading single-read encrypted whispers.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")
	rootCmd.PersistentFlags().StringVar(&cardFlag, "card", "", "Card ID (overrides config)")

	rootCmd.AddCommand(cardCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(readCmd())
}

// cardID resolves the card to use: flag, then WHISPER_CARD, then config.
func cardID() string {
	if cardFlag != "" {
		return cardFlag
	}
	if v := os.Getenv("WHISPER_CARD"); v != "" {
		return v
	}
	return cfg.Card
}

// promptPassphrase reads a passphrase from stdin if not given as a flag.
func promptPassphrase(cmd *cobra.Command) string {
	pass, _ := cmd.Flags().GetString("passphrase")
	if pass != "" {
		return pass
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

// --- card ---

func cardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "card", Short: "Card commands"}

	stateCmd := &cobra.Command{
		Use:   "state [card-id]",
		Short: "Show remaining credits on a card",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := cardID()
			if len(args) > 0 {
				id = args[0]
			}
			if id == "" {
				printError("no card id; pass one, set --card, or run 'whisper card use'")
				return nil
			}
			client := newClient()
			result, err := client.get("/v1/card/" + id)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if c, ok := result["card"].(map[string]any); ok {
				printResult(c)
				return nil
			}
			printResult(result)
			return nil
		},
	}

	useCmd := &cobra.Command{
		Use:   "use <card-id>",
		Short: "Save a card id as the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Card = args[0]
			if err := saveConfig(); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Card saved to config.")
			return nil
		},
	}

	cmd.AddCommand(stateCmd, useCmd)
	return cmd
}

// --- send ---

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a whisper (spends one send credit)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := cardID()
			if id == "" {
				printError("no card id; set --card or run 'whisper card use'")
				return nil
			}

			var message string
			if len(args) > 0 {
				message = strings.Join(args, " ")
			} else {
				// Read the message from stdin so it stays out of shell history
				fmt.Fprintln(os.Stderr, "Message (end with EOF):")
				data, err := readAll(os.Stdin)
				if err != nil {
					printError(err.Error())
					return nil
				}
				message = strings.TrimRight(string(data), "\n")
			}
			if message == "" {
				printError("message cannot be empty")
				return nil
			}

			pass := promptPassphrase(cmd)
			client := newClient()
			result, err := client.post("/v1/whisper", map[string]any{
				"card_id":    id,
				"passphrase": pass,
				"message":    message,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("passphrase", "", "Passphrase (prompted if omitted)")
	return cmd
}

// --- read ---

func readCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <code>",
		Short: "Read a whisper once (spends one read credit and burns it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := cardID()
			if id == "" {
				printError("no card id; set --card or run 'whisper card use'")
				return nil
			}

			pass := promptPassphrase(cmd)
			client := newClient()
			result, err := client.post("/v1/whisper/"+strings.ToUpper(args[0])+"/read", map[string]any{
				"card_id":    id,
				"passphrase": pass,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if pt, ok := result["plaintext"].(string); ok && outputFormat == "table" {
				fmt.Println(pt)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("passphrase", "", "Passphrase (prompted if omitted)")
	return cmd
}
