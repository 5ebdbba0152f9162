package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
)

// LocalTransport serves the registry tools in process against the mock
// catalog. It honours the ToolTransport contract exactly the way a remote
// channel would: context cancellation, errx.ErrUnknownTool for names outside
// the registry and errx.ErrToolFailed for tool-level argument failures.
type LocalTransport struct{}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{}
}

func (t *LocalTransport) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch name {
	case ToolSearchProducts:
		return searchProducts(args)
	case ToolGetProductDetails:
		return getProductDetails(args)
	default:
		return nil, fmt.Errorf("%w: %s", errx.ErrUnknownTool, name)
	}
}

type searchOutput struct {
	Products []model.Product `json:"products"`
	Total    int             `json:"total"`
}

func searchProducts(args map[string]any) (json.RawMessage, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", errx.ErrToolFailed)
	}
	category := strings.TrimSpace(stringArg(args, "category"))
	priceCeiling := floatArg(args, "price_ceiling")
	maxResults := clampInt(intArg(args, "max_results", 10), 1, 20)

	var matched []model.Product
	for _, product := range MockCatalog {
		if !matchesQuery(product, query) {
			continue
		}
		if category != "" && !strings.EqualFold(product.Category, category) {
			continue
		}
		if priceCeiling > 0 && product.Price > priceCeiling {
			continue
		}
		matched = append(matched, product)
	}
	if len(matched) > maxResults {
		matched = matched[:maxResults]
	}

	return json.Marshal(searchOutput{Products: matched, Total: len(matched)})
}

// matchesQuery does keyword matching over name, brand, category and
// description: every whitespace-separated term must hit at least one field.
func matchesQuery(p model.Product, query string) bool {
	haystack := strings.ToLower(p.Name + " " + p.Brand + " " + p.Category + " " + p.Description)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func getProductDetails(args map[string]any) (json.RawMessage, error) {
	productID := strings.TrimSpace(stringArg(args, "product_id"))
	if productID == "" {
		return nil, fmt.Errorf("%w: product_id is required", errx.ErrToolFailed)
	}

	if details, exists := mockProductDetails[productID]; exists {
		return json.Marshal(details)
	}

	// fall back to the basic catalog entry
	for _, product := range MockCatalog {
		if product.ID == productID {
			return json.Marshal(ProductDetails{
				ID:          product.ID,
				Name:        product.Name,
				Brand:       product.Brand,
				Description: product.Description,
				Price:       product.Price,
				Specifications: map[string]string{
					"category": product.Category,
					"in_stock": fmt.Sprintf("%v", product.InStock),
				},
				InStock: product.InStock,
			})
		}
	}

	return nil, fmt.Errorf("%w: product not found: %s", errx.ErrToolFailed, productID)
}

// ===== argument coercion helpers =====
// Planner output arrives as map[string]any decoded from JSON, so numbers are
// float64 and the model occasionally sends numbers as strings.

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch vv := v.(type) {
	case string:
		return vv
	default:
		return fmt.Sprint(v)
	}
}

func floatArg(args map[string]any, key string) float64 {
	v, ok := args[key]
	if !ok {
		return 0
	}
	switch vv := v.(type) {
	case float64:
		return vv
	case int:
		return float64(vv)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64); err == nil {
			return f
		}
	}
	return 0
}

func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch vv := v.(type) {
	case float64:
		return int(vv)
	case int:
		return vv
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
			return n
		}
	}
	return def
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

var _ model.ToolTransport = (*LocalTransport)(nil)
