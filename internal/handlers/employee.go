package handlers

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/bff-proxy/internal/session"
)

// Wire names shared with the browser client and the upstream API.
const (
	employeeIDParam = "id_funcionario"
	cpfParam        = "cpf"
	passwordField   = "senha"
)

var (
	employeeFields       = []string{"nome", "matricula", "cpf", "senha", "grupo", "telefone"}
	employeeUpdateFields = append([]string{employeeIDParam}, employeeFields...)
	employeeLoginFields  = []string{cpfParam, passwordField}
)

// Employee serves /api/funcionario against the upstream employee
// collection at baseURL.
type Employee struct {
	api     API
	baseURL string
	logger  *slog.Logger
}

// NewEmployee creates the employee handlers.
func NewEmployee(api API, baseURL string, logger *slog.Logger) *Employee {
	return &Employee{
		api:     api,
		baseURL: baseURL,
		logger:  logger.With(slog.String("component", "employee")),
	}
}

// List handles GET /all.
func (h *Employee) List(w http.ResponseWriter, r *http.Request) {
	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), http.MethodGet, h.baseURL, nil, nil)
	writeJSON(w, status, body)
}

// Get handles GET /one?id_funcionario=.
func (h *Employee) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requireQuery(w, r, employeeIDParam)
	if !ok {
		return
	}

	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), http.MethodGet, itemURL(h.baseURL, id), nil, nil)
	writeJSON(w, status, body)
}

// Create handles POST /.
func (h *Employee) Create(w http.ResponseWriter, r *http.Request) {
	data, ok := readObject(w, r, employeeFields)
	if !ok {
		return
	}

	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), http.MethodPost, h.baseURL, data, nil)
	if !isCreated(status) {
		h.logger.Warn("employee create rejected", slog.Int("status", status))
		writeJSON(w, status, map[string]any{"error": "failed to create employee", "details": body})
		return
	}

	writeJSON(w, status, body)
}

// Update handles PUT /. The ID is read from the body; browsers that
// send it as ?id_funcionario= instead have it copied into the body.
func (h *Employee) Update(w http.ResponseWriter, r *http.Request) {
	data, ok := decodeObjectOrFail(w, r)
	if !ok {
		return
	}

	if _, present := data[employeeIDParam]; !present {
		if id := r.URL.Query().Get(employeeIDParam); id != "" {
			data[employeeIDParam] = id
		}
	}

	if !requireFields(w, data, employeeUpdateFields) {
		return
	}

	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), http.MethodPut, itemURL(h.baseURL, data[employeeIDParam]), data, nil)
	if !isCreated(status) {
		h.logger.Warn("employee update rejected", slog.Int("status", status))
		writeJSON(w, status, map[string]any{"error": "failed to update employee", "details": body})
		return
	}

	writeJSON(w, status, body)
}

// Delete handles DELETE /?id_funcionario=.
func (h *Employee) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireQuery(w, r, employeeIDParam)
	if !ok {
		return
	}

	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), http.MethodDelete, itemURL(h.baseURL, id), nil, nil)
	writeJSON(w, status, body)
}

// ByCPF handles GET /cpf?cpf=.
func (h *Employee) ByCPF(w http.ResponseWriter, r *http.Request) {
	cpf, ok := requireQuery(w, r, cpfParam)
	if !ok {
		return
	}

	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), http.MethodGet, itemURL(h.baseURL+"cpf/", cpf), nil, nil)
	writeJSON(w, status, body)
}

// Login handles POST /login. Only cpf and senha are sent upstream.
func (h *Employee) Login(w http.ResponseWriter, r *http.Request) {
	data, ok := readObject(w, r, employeeLoginFields)
	if !ok {
		return
	}

	creds := map[string]any{cpfParam: data[cpfParam], passwordField: data[passwordField]}
	body, status := h.api.MakeAPIRequest(r.Context(), session.ID(r.Context()), http.MethodPost, h.baseURL+"login/", creds, nil)
	writeJSON(w, status, body)
}
