package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a protected order against a running service",
	Long: `Commits an order to a running protection service and prints the
reveal payload. Keep the payload: it must be presented unchanged, before
the reveal deadline, to activate the order.`,
	RunE: runCommit,
}

var (
	serviceURL  string
	commitUser  string
	commitMkt   string
	commitSide  string
	commitKind  string
	commitQty   float64
	commitPrice float64
	commitLevel string
	payloadOut  string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(commitCmd)

	commitCmd.Flags().StringVar(&serviceURL, "url", "http://localhost:8080", "Service base URL")
	commitCmd.Flags().StringVarP(&commitUser, "user", "u", "", "User ID (required)")
	commitCmd.Flags().StringVarP(&commitMkt, "market", "m", "SOL-USDC", "Market symbol")
	commitCmd.Flags().StringVar(&commitSide, "side", "buy", "Order side (buy, sell)")
	commitCmd.Flags().StringVar(&commitKind, "kind", "limit", "Order kind (market, limit, stop_loss, take_profit)")
	commitCmd.Flags().Float64VarP(&commitQty, "quantity", "q", 0, "Order quantity (required)")
	commitCmd.Flags().Float64VarP(&commitPrice, "price", "p", 0, "Limit price (0 for market orders)")
	commitCmd.Flags().StringVarP(&commitLevel, "level", "l", "standard", "Protection level (none, standard, maximum)")
	commitCmd.Flags().StringVarP(&payloadOut, "out", "o", "", "Write reveal payload JSON to this file")

	_ = commitCmd.MarkFlagRequired("user")
	_ = commitCmd.MarkFlagRequired("quantity")
}

func runCommit(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	body, err := json.Marshal(map[string]interface{}{
		"user_id":          commitUser,
		"market":           commitMkt,
		"side":             commitSide,
		"kind":             commitKind,
		"quantity":         commitQty,
		"price":            commitPrice,
		"protection_level": commitLevel,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(serviceURL+"/api/orders/commit", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("commit request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		CommitHash     string          `json:"commit_hash"`
		OrderID        string          `json:"order_id"`
		RevealDeadline *time.Time      `json:"reveal_deadline"`
		Payload        json.RawMessage `json:"payload"`
		Error          string          `json:"error"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("commit rejected: %s", result.Error)
	}

	fmt.Printf("=== Order Committed ===\n\n")
	fmt.Printf("Order ID:    %s\n", result.OrderID)
	if result.CommitHash != "" {
		fmt.Printf("Commit Hash: %s\n", result.CommitHash)
	}
	if result.RevealDeadline != nil {
		fmt.Printf("Reveal By:   %s\n", result.RevealDeadline.Format(time.RFC3339))
	}

	if payloadOut != "" && len(result.Payload) > 0 {
		stash, err := json.Marshal(map[string]json.RawMessage{
			"commit_hash": json.RawMessage(fmt.Sprintf("%q", result.CommitHash)),
			"payload":     result.Payload,
		})
		if err != nil {
			return fmt.Errorf("marshal payload stash: %w", err)
		}
		err = os.WriteFile(payloadOut, stash, 0o600)
		if err != nil {
			return fmt.Errorf("write payload file: %w", err)
		}
		fmt.Printf("\nReveal payload written to %s\n", payloadOut)
	} else if len(result.Payload) > 0 {
		fmt.Printf("\nReveal Payload:\n%s\n", result.Payload)
	}

	return nil
}
