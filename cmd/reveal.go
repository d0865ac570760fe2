package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var revealCmd = &cobra.Command{
	Use:   "reveal [payload-file]",
	Short: "Reveal a previously committed order",
	Long: `Reveals a committed order using the payload file produced by the
commit command. A successful reveal activates the order and routes it into
the current batch for its market.`,
	Args: cobra.ExactArgs(1),
	RunE: runReveal,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(revealCmd)
	revealCmd.Flags().StringVar(&serviceURL, "url", "http://localhost:8080", "Service base URL")
}

func runReveal(cmd *cobra.Command, args []string) error {
	stash, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read payload file: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serviceURL+"/api/orders/reveal", "application/json", bytes.NewReader(stash))
	if err != nil {
		return fmt.Errorf("reveal request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		OrderID string `json:"order_id"`
		BatchID string `json:"batch_id"`
		Reason  string `json:"reason"`
		Error   string `json:"error"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("reveal failed: %s", result.Error)
	}

	fmt.Printf("=== Order Reveal ===\n\n")
	if result.Success {
		fmt.Printf("Revealed: %s\n", result.OrderID)
		if result.BatchID != "" {
			fmt.Printf("Batch:    %s\n", result.BatchID)
		}
	} else {
		fmt.Printf("Rejected: %s\n", result.Reason)
	}

	return nil
}
