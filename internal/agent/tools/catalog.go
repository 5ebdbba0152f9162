package tools

import "github.com/recomind-agent-poc/server/internal/agent/model"

// Tool registry names. The dispatcher validates against these and the
// planner prompt advertises them.
const (
	ToolSearchProducts    = "search_products"
	ToolGetProductDetails = "get_product_details"
)

// Registry describes the tools served by the local transport.
func Registry() []model.ToolSpec {
	return []model.ToolSpec{
		{
			Name: ToolSearchProducts,
			Desc: "Search the product catalog. Arguments: query (string, required, keywords such as brand, " +
				"product type or usage), category (string, optional: footwear, apparel, accessories), " +
				"price_ceiling (number, optional, maximum price in USD), max_results (number, optional, default 10, max 20). " +
				"Returns matching products with id, name, brand, price and availability.",
		},
		{
			Name: ToolGetProductDetails,
			Desc: "Get full specifications for one product. Arguments: product_id (string, required, exact id " +
				"from search_products results, e.g. prod-001). Returns description, specifications and stock status.",
		},
	}
}

// MockCatalog is the demo inventory served by the local transport.
var MockCatalog = []model.Product{
	{
		ID:          "prod-001",
		Name:        "Nike Air Zoom Pegasus 41",
		Brand:       "Nike",
		Category:    "footwear",
		Price:       95.00,
		Description: "Responsive everyday running shoes with ReactX foam, breathable mesh upper, neutral support",
		InStock:     true,
	},
	{
		ID:          "prod-002",
		Name:        "Nike Revolution 7",
		Brand:       "Nike",
		Category:    "footwear",
		Price:       65.00,
		Description: "Lightweight budget running shoes for daily training, cushioned foam midsole",
		InStock:     true,
	},
	{
		ID:          "prod-003",
		Name:        "Adidas Ultraboost Light",
		Brand:       "Adidas",
		Category:    "footwear",
		Price:       180.00,
		Description: "Premium running shoes with BOOST cushioning and Primeknit upper",
		InStock:     true,
	},
	{
		ID:          "prod-004",
		Name:        "Nike Dri-FIT Legend Tee",
		Brand:       "Nike",
		Category:    "apparel",
		Price:       28.00,
		Description: "Moisture-wicking training T-shirt, casual fit, men and women sizes",
		InStock:     true,
	},
	{
		ID:          "prod-005",
		Name:        "Puma Velocity Nitro 3",
		Brand:       "Puma",
		Category:    "footwear",
		Price:       89.00,
		Description: "Cushioned running shoes with NITRO foam, good for mid-distance training",
		InStock:     false,
	},
	{
		ID:          "prod-006",
		Name:        "Adidas Adizero SL",
		Brand:       "Adidas",
		Category:    "footwear",
		Price:       98.00,
		Description: "Fast lightweight running shoes with Lightstrike Pro heel insert",
		InStock:     true,
	},
	{
		ID:          "prod-007",
		Name:        "Nike Everyday Crew Socks 3-Pack",
		Brand:       "Nike",
		Category:    "accessories",
		Price:       16.00,
		Description: "Cushioned cotton-blend crew socks for training",
		InStock:     true,
	},
	{
		ID:          "prod-008",
		Name:        "Puma Essentials Hoodie",
		Brand:       "Puma",
		Category:    "apparel",
		Price:       45.00,
		Description: "Casual fleece hoodie, regular fit, unisex",
		InStock:     true,
	},
}

// ProductDetails is the detail view keyed by product id.
type ProductDetails struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Brand          string            `json:"brand"`
	Description    string            `json:"description"`
	Price          float64           `json:"price"`
	Specifications map[string]string `json:"specifications"`
	InStock        bool              `json:"in_stock"`
}

var mockProductDetails = map[string]ProductDetails{
	"prod-001": {
		ID:          "prod-001",
		Name:        "Nike Air Zoom Pegasus 41",
		Brand:       "Nike",
		Description: "The Pegasus 41 pairs ReactX foam with a waffle outsole for a responsive daily trainer suited to road running and gym sessions.",
		Price:       95.00,
		Specifications: map[string]string{
			"drop":    "10mm",
			"weight":  "297g (US men's 10)",
			"upper":   "Engineered mesh",
			"midsole": "ReactX foam, Air Zoom units",
			"usage":   "Road running, daily training",
			"colors":  "Black/White, Wolf Grey, Volt",
		},
		InStock: true,
	},
	"prod-002": {
		ID:          "prod-002",
		Name:        "Nike Revolution 7",
		Brand:       "Nike",
		Description: "An affordable neutral trainer with soft foam cushioning and a flexible outsole for easy miles and everyday wear.",
		Price:       65.00,
		Specifications: map[string]string{
			"drop":    "~10mm",
			"weight":  "258g (US men's 10)",
			"upper":   "Breathable mesh",
			"midsole": "Soft foam",
			"usage":   "Daily training, walking",
			"colors":  "Black, Navy, Grey",
		},
		InStock: true,
	},
	"prod-006": {
		ID:          "prod-006",
		Name:        "Adidas Adizero SL",
		Brand:       "Adidas",
		Description: "A lightweight trainer from the racing line with Lightstrike EVA and a Lightstrike Pro heel insert for uptempo sessions.",
		Price:       98.00,
		Specifications: map[string]string{
			"drop":    "8.5mm",
			"weight":  "252g (US men's 9)",
			"upper":   "Lightweight mesh",
			"midsole": "Lightstrike, Lightstrike Pro insert",
			"usage":   "Tempo runs, racing, daily training",
			"colors":  "Cloud White, Core Black",
		},
		InStock: true,
	},
}
