package model

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	InStock     bool    `json:"in_stock"`
}

// ToolSpec describes a registry tool for prompt rendering and dispatch
// validation.
type ToolSpec struct {
	Name string
	Desc string
}
