package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
)

var (
	outputFormat string // "table", "json", "raw"
	outputField  string // for -field=key
)

// fieldOrder fixes the display order of the response fields the API returns.
// The whisper id and plaintext come first; error details trail.
var fieldOrder = []string{"id", "plaintext", "status", "version", "error", "code", "retryable"}

// printResult renders an API response in the chosen format.
func printResult(data map[string]any) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(data) //nolint:errcheck
	case "raw":
		printRaw(os.Stdout, data)
	default:
		printTable(os.Stdout, data)
	}
}

func printTable(out io.Writer, data map[string]any) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	printed := map[string]bool{"card": true}
	for _, k := range fieldOrder {
		if v, ok := data[k]; ok {
			fmt.Fprintf(w, "%s\t%v\n", k, v)
			printed[k] = true
		}
	}
	if card, ok := data["card"].(map[string]any); ok {
		fmt.Fprintf(w, "CARD\t\n")
		fmt.Fprintf(w, "  send_credits\t%v\n", card["send_credits"])
		fmt.Fprintf(w, "  read_credits\t%v\n", card["read_credits"])
		fmt.Fprintf(w, "  valid\t%v\n", card["valid"])
	}
	// Fields this CLI version doesn't know about yet
	for _, k := range sortedKeys(data) {
		if !printed[k] {
			fmt.Fprintf(w, "%s\t%v\n", k, data[k])
		}
	}
	w.Flush()
}

// printRaw emits key=value lines, flattening the card state so a script can
// grep card.read_credits directly.
func printRaw(out io.Writer, data map[string]any) {
	if outputField != "" {
		if card, ok := data["card"].(map[string]any); ok {
			if v, ok := card[outputField]; ok {
				fmt.Fprintln(out, v)
				return
			}
		}
		if v, ok := data[outputField]; ok {
			fmt.Fprintln(out, v)
		}
		return
	}
	printed := map[string]bool{"card": true}
	for _, k := range fieldOrder {
		if v, ok := data[k]; ok {
			fmt.Fprintf(out, "%s=%v\n", k, v)
			printed[k] = true
		}
	}
	if card, ok := data["card"].(map[string]any); ok {
		for _, k := range sortedKeys(card) {
			fmt.Fprintf(out, "card.%s=%v\n", k, card[k])
		}
	}
	for _, k := range sortedKeys(data) {
		if !printed[k] {
			fmt.Fprintf(out, "%s=%v\n", k, data[k])
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
}

func printSuccess(msg string) {
	fmt.Println(msg)
}
