package tool

import (
	"context"
	"encoding/json"
	"errors"

	contractx "github.com/flamefinish/inventory-agent/agent/contract"
)

// Dispatcher routes parsed tool operations to the record store and folds
// every failure into an error payload the model can read. It never returns a
// Go error to the loop; the model decides whether to retry, apologize, or ask
// for clarification.
type Dispatcher struct {
	records contractx.RecordStore
}

func NewDispatcher(records contractx.RecordStore) (*Dispatcher, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	return &Dispatcher{records: records}, nil
}

type productsOutput struct {
	Products []contractx.Product `json:"products"`
}

type ackOutput struct {
	Success bool `json:"success"`
}

// Dispatch parses and executes one tool call for the given sender.
func (d *Dispatcher) Dispatch(ctx context.Context, name, rawArgs, sender string) contractx.ToolResult {
	op, err := ParseCall(name, rawArgs, sender)
	if err != nil {
		return contractx.ToolResult{Tool: name, Error: err.Error()}
	}
	return d.execute(ctx, name, op)
}

func (d *Dispatcher) execute(ctx context.Context, name string, op Op) contractx.ToolResult {
	switch op := op.(type) {
	case LookupProducts:
		products, err := d.records.SearchProducts(ctx, op.SearchTerm)
		if err != nil {
			return contractx.ToolResult{Tool: name, Error: err.Error()}
		}
		if products == nil {
			products = []contractx.Product{}
		}
		return contractx.ToolResult{Tool: name, Result: productsOutput{Products: products}}

	case UpdateStock:
		if err := d.records.SetStock(ctx, op.PageID, op.NewStock); err != nil {
			return contractx.ToolResult{Tool: name, Error: err.Error()}
		}
		return contractx.ToolResult{Tool: name, Result: ackOutput{Success: true}}

	case UpdatePrice:
		if err := d.records.SetPrice(ctx, op.PageID, op.NewPrice); err != nil {
			return contractx.ToolResult{Tool: name, Error: err.Error()}
		}
		return contractx.ToolResult{Tool: name, Result: ackOutput{Success: true}}

	case LogSale:
		sale := contractx.Sale{
			ProductName: op.ProductName,
			Quantity:    op.Quantity,
			UnitPrice:   op.UnitPrice,
			SoldBy:      op.SoldBy,
		}
		if err := d.records.AppendSale(ctx, sale); err != nil {
			return contractx.ToolResult{Tool: name, Error: err.Error()}
		}
		return contractx.ToolResult{Tool: name, Result: ackOutput{Success: true}}

	default:
		return contractx.ToolResult{Tool: name, Error: contractx.ErrUnknownTool.Error()}
	}
}

// Payload renders a tool result as the JSON fed back to the model.
func Payload(res contractx.ToolResult) string {
	if res.Error != "" {
		encoded, err := json.Marshal(map[string]string{"error": res.Error})
		if err != nil {
			return `{"error":"tool failed"}`
		}
		return string(encoded)
	}
	encoded, err := json.Marshal(res.Result)
	if err != nil {
		return `{"error":"tool result is not serializable"}`
	}
	return string(encoded)
}
