package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/flamefinish/inventory-agent/agent/contract"
)

const (
	ToolLookupProducts = "lookup_products"
	ToolUpdateStock    = "update_stock"
	ToolUpdatePrice    = "update_price"
	ToolLogSale        = "log_sale"
)

// Op is a parsed, validated tool invocation. The set is closed: the
// dispatcher routes on the concrete type, never on the raw tool name.
type Op interface {
	isOp()
}

type LookupProducts struct {
	SearchTerm string
}

type UpdateStock struct {
	PageID   string
	NewStock int
}

type UpdatePrice struct {
	PageID   string
	NewPrice float64
}

type LogSale struct {
	ProductName string
	Quantity    int
	UnitPrice   float64
	SoldBy      string
}

func (LookupProducts) isOp() {}
func (UpdateStock) isOp()    {}
func (UpdatePrice) isOp()    {}
func (LogSale) isOp()        {}

// Catalog declares the four inventory tools exposed to the model. It is
// static and shared by every model call.
func Catalog() []openaisdk.ChatCompletionToolParam {
	return []openaisdk.ChatCompletionToolParam{
		{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        ToolLookupProducts,
				Description: openaisdk.String("Search the inventory database for products. Use a search term to filter by product name, or leave empty to get all products."),
				Parameters: openaisdk.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"search_term": map[string]any{
							"type":        "string",
							"description": "Product name or keyword to search for (e.g. 'oak', 'SPC', 'walnut'). Leave empty for all products.",
						},
					},
					"required": []string{},
				},
			},
		},
		{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        ToolUpdateStock,
				Description: openaisdk.String("Update the stock quantity of a product after confirming the product ID and new stock value."),
				Parameters: openaisdk.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"page_id": map[string]any{
							"type":        "string",
							"description": "The record ID of the product to update.",
						},
						"new_stock": map[string]any{
							"type":        "integer",
							"description": "The new stock quantity after the adjustment.",
						},
					},
					"required": []string{"page_id", "new_stock"},
				},
			},
		},
		{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        ToolUpdatePrice,
				Description: openaisdk.String("Update the price of a product."),
				Parameters: openaisdk.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"page_id": map[string]any{
							"type":        "string",
							"description": "The record ID of the product to update.",
						},
						"new_price": map[string]any{
							"type":        "number",
							"description": "The new price in Philippine Pesos.",
						},
					},
					"required": []string{"page_id", "new_price"},
				},
			},
		},
		{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        ToolLogSale,
				Description: openaisdk.String("Log a sale transaction to the Sales Log database. Call this AFTER updating stock to keep a record of every sale."),
				Parameters: openaisdk.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"product_name": map[string]any{
							"type":        "string",
							"description": "The product name (e.g. 'Oak SPC Flooring').",
						},
						"quantity": map[string]any{
							"type":        "integer",
							"description": "Number of units sold.",
						},
						"unit_price": map[string]any{
							"type":        "number",
							"description": "Price per unit in Philippine Pesos.",
						},
						"sold_by": map[string]any{
							"type":        "string",
							"description": "Name or phone number of the salesperson who reported the sale.",
						},
					},
					"required": []string{"product_name", "quantity", "unit_price", "sold_by"},
				},
			},
		},
	}
}

type lookupArgs struct {
	SearchTerm string `json:"search_term"`
}

type updateStockArgs struct {
	PageID   string   `json:"page_id"`
	NewStock *float64 `json:"new_stock"`
}

type updatePriceArgs struct {
	PageID   string   `json:"page_id"`
	NewPrice *float64 `json:"new_price"`
}

type logSaleArgs struct {
	ProductName string   `json:"product_name"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	SoldBy      string   `json:"sold_by"`
}

// ParseCall validates a raw tool call once, at the boundary, and returns the
// typed operation. sender fills sold_by when the model leaves it out.
func ParseCall(name, rawArgs, sender string) (Op, error) {
	switch name {
	case ToolLookupProducts:
		var args lookupArgs
		if err := decodeArgs(rawArgs, &args); err != nil {
			return nil, err
		}
		return LookupProducts{SearchTerm: strings.TrimSpace(args.SearchTerm)}, nil

	case ToolUpdateStock:
		var args updateStockArgs
		if err := decodeArgs(rawArgs, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.PageID) == "" {
			return nil, fmt.Errorf("%w: page_id is required", contractx.ErrValidation)
		}
		stock, err := toCount(args.NewStock, "new_stock")
		if err != nil {
			return nil, err
		}
		return UpdateStock{PageID: args.PageID, NewStock: stock}, nil

	case ToolUpdatePrice:
		var args updatePriceArgs
		if err := decodeArgs(rawArgs, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.PageID) == "" {
			return nil, fmt.Errorf("%w: page_id is required", contractx.ErrValidation)
		}
		if args.NewPrice == nil || *args.NewPrice < 0 {
			return nil, fmt.Errorf("%w: new_price must be a non-negative number", contractx.ErrValidation)
		}
		return UpdatePrice{PageID: args.PageID, NewPrice: *args.NewPrice}, nil

	case ToolLogSale:
		var args logSaleArgs
		if err := decodeArgs(rawArgs, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.ProductName) == "" {
			return nil, fmt.Errorf("%w: product_name is required", contractx.ErrValidation)
		}
		quantity, err := toCount(args.Quantity, "quantity")
		if err != nil {
			return nil, err
		}
		if args.UnitPrice == nil || *args.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: unit_price must be a non-negative number", contractx.ErrValidation)
		}
		soldBy := strings.TrimSpace(args.SoldBy)
		if soldBy == "" {
			soldBy = sender
		}
		return LogSale{
			ProductName: args.ProductName,
			Quantity:    quantity,
			UnitPrice:   *args.UnitPrice,
			SoldBy:      soldBy,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownTool, name)
	}
}

func decodeArgs(rawArgs string, dst any) error {
	trimmed := strings.TrimSpace(rawArgs)
	if trimmed == "" {
		trimmed = "{}"
	}
	if err := json.Unmarshal([]byte(trimmed), dst); err != nil {
		return fmt.Errorf("%w: invalid tool arguments: %v", contractx.ErrValidation, err)
	}
	return nil
}

// toCount accepts what the model sends for integer fields (it sometimes emits
// 3.0 for 3) and rejects negatives and fractions.
func toCount(v *float64, field string) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s is required", contractx.ErrValidation, field)
	}
	if *v < 0 || *v != math.Trunc(*v) {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", contractx.ErrValidation, field)
	}
	return int(*v), nil
}
