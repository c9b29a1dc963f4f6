package shared

// Page is the envelope returned by list endpoints:
// { data: [...], pagina: n, total_paginas: n, total_items?: n }
type Page[T any] struct {
	Data         []T  `json:"data"`
	Pagina       int  `json:"pagina"`
	TotalPaginas int  `json:"total_paginas"`
	TotalItems   *int `json:"total_items,omitempty"`
}

// NewPage builds a page envelope, deriving the page count from total and perPage
func NewPage[T any](items []T, total, page, perPage int) Page[T] {
	totalPages := 0
	if perPage > 0 {
		totalPages = total / perPage
		if total%perPage > 0 {
			totalPages++
		}
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Data:         items,
		Pagina:       page,
		TotalPaginas: totalPages,
		TotalItems:   &total,
	}
}

// Total returns total_items, or 0 when the server omitted it
func (p Page[T]) Total() int {
	if p.TotalItems == nil {
		return 0
	}
	return *p.TotalItems
}

// Ref is the simple nested reference some entities embed (e.g. a Venta's Cliente)
type Ref struct {
	ID     ID     `json:"id"`
	Nombre string `json:"nombre,omitempty"`
}
