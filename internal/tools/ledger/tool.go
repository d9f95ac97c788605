package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/quill/internal/agent"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// UpsertTool records expense entries through the store.
type UpsertTool struct {
	store *Store
}

// NewUpsertTool creates the ledger_upsert tool.
func NewUpsertTool(store *Store) *UpsertTool {
	return &UpsertTool{store: store}
}

func (t *UpsertTool) Name() string { return "ledger_upsert" }

func (t *UpsertTool) Description() string {
	return "Record an expense entry in the ledger. Entries with the same date, merchant, and amount are updated in place."
}

func (t *UpsertTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"date": {"type": "string", "description": "Entry date, YYYY-MM-DD"},
			"merchant": {"type": "string", "description": "Merchant name"},
			"amount": {"type": "number", "description": "Amount spent"},
			"category": {"type": "string", "description": "Optional expense category"},
			"note": {"type": "string", "description": "Optional free-form note"}
		},
		"required": ["date", "merchant", "amount"]
	}`)
}

func (t *UpsertTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var args struct {
		Date     string  `json:"date"`
		Merchant string  `json:"merchant"`
		Amount   float64 `json:"amount"`
		Category string  `json:"category"`
		Note     string  `json:"note"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	if !datePattern.MatchString(args.Date) {
		return &agent.ToolResult{Content: fmt.Sprintf("date %q must be YYYY-MM-DD", args.Date), IsError: true}, nil
	}
	if strings.TrimSpace(args.Merchant) == "" {
		return &agent.ToolResult{Content: "merchant is required", IsError: true}, nil
	}
	if args.Amount <= 0 {
		return &agent.ToolResult{Content: "amount must be positive", IsError: true}, nil
	}

	inserted, err := t.store.Upsert(ctx, Entry{
		Date:     args.Date,
		Merchant: strings.TrimSpace(args.Merchant),
		Amount:   args.Amount,
		Category: strings.TrimSpace(args.Category),
		Note:     strings.TrimSpace(args.Note),
	})
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("ledger write failed: %v", err), IsError: true}, nil
	}

	action := "updated"
	if inserted {
		action = "inserted"
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("%s entry: %s %s %.2f", action, args.Date, args.Merchant, args.Amount),
	}, nil
}
