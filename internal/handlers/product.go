package handlers

import (
	"net/http"

	"github.com/alexjbarnes/bff-proxy/internal/session"
)

const productIDParam = "id_produto"

var (
	productFields       = []string{"nome", "descricao", "valor_unitario", "foto"}
	productUpdateFields = append([]string{productIDParam}, productFields...)
)

// Product serves /api/produto. Upstream errors are relayed unchanged.
type Product struct {
	api     API
	baseURL string
}

// NewProduct creates the product handlers for the upstream product
// collection at baseURL.
func NewProduct(api API, baseURL string) *Product {
	return &Product{api: api, baseURL: baseURL}
}

// List handles GET /all.
func (h *Product) List(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodGet, h.baseURL, nil)
}

// Get handles GET /one?id_produto=.
func (h *Product) Get(w http.ResponseWriter, r *http.Request) {
	if id, ok := requireQuery(w, r, productIDParam); ok {
		h.forward(w, r, http.MethodGet, itemURL(h.baseURL, id), nil)
	}
}

// Delete handles DELETE /?id_produto=.
func (h *Product) Delete(w http.ResponseWriter, r *http.Request) {
	if id, ok := requireQuery(w, r, productIDParam); ok {
		h.forward(w, r, http.MethodDelete, itemURL(h.baseURL, id), nil)
	}
}

// Create handles POST /.
func (h *Product) Create(w http.ResponseWriter, r *http.Request) {
	if data, ok := readObject(w, r, productFields); ok {
		h.forward(w, r, http.MethodPost, h.baseURL, data)
	}
}

// Update handles PUT /. The ID travels in the body as id_produto.
func (h *Product) Update(w http.ResponseWriter, r *http.Request) {
	if data, ok := readObject(w, r, productUpdateFields); ok {
		h.forward(w, r, http.MethodPut, itemURL(h.baseURL, data[productIDParam]), data)
	}
}

func (h *Product) forward(w http.ResponseWriter, r *http.Request, method, rawURL string, data map[string]any) {
	var payload any
	if data != nil {
		payload = data
	}

	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), method, rawURL, payload, nil)
	writeJSON(w, status, body)
}
