package mockapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	t      *testing.T
	server *Server
	http   *httptest.Server
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := New(Options{
		JWTSecret:  "test-secret",
		BcryptCost: bcrypt.MinCost,
		FakerSeed:  7,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	_, err = s.AddUser("admin", "admin123", "admin")
	require.NoError(t, err)

	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)

	api := &testAPI{t: t, server: s, http: hs}
	api.token = api.login("admin", "admin123")
	return api
}

func (a *testAPI) login(username, password string) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password}, "")
	require.Equal(a.t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Token string `json:"access_token"`
	}
	require.NoError(a.t, json.Unmarshal(body, &out))
	require.NotEmpty(a.t, out.Token)
	return out.Token
}

func (a *testAPI) do(method, path string, body any, token string) (*http.Response, []byte) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.http.URL+path, r)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.send(req)
}

func (a *testAPI) send(req *http.Request) (*http.Response, []byte) {
	a.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, body
}

func (a *testAPI) authed(method, path string, body any) (*http.Response, []byte) {
	a.t.Helper()
	return a.do(method, path, body, a.token)
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

type pageBody struct {
	Data         []Record `json:"data"`
	Pagina       int      `json:"pagina"`
	TotalPaginas int      `json:"total_paginas"`
	TotalItems   int      `json:"total_items"`
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)

	t.Run("wrong password", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "nope"}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid username or password", decode[ErrorResponse](t, body).Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/api/auth/login", map[string]string{}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		e := decode[ErrorResponse](t, body)
		assert.Equal(t, ErrCodeValidation, e.Error)
		assert.Contains(t, e.Errors, "username")
		assert.Contains(t, e.Errors, "password")
	})

	t.Run("returns token and user", func(t *testing.T) {
		resp, body := api.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "admin123"}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[map[string]any](t, body)
		assert.NotEmpty(t, out["access_token"])
		user := out["user"].(map[string]any)
		assert.Equal(t, "admin", user["username"])
		assert.NotContains(t, user, "password")
	})
}

func TestAuthentication(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := api.do(http.MethodGet, "/api/clientes", nil, tt.token)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, ErrCodeUnauthorized, decode[ErrorResponse](t, body).Error)
		})
	}

	t.Run("token of another secret", func(t *testing.T) {
		other := newTokenIssuer("other-secret", 0, "appinv-mockapi")
		token, err := other.issue(&account{id: 1, username: "admin", rol: "admin"})
		require.NoError(t, err)
		resp, _ := api.do(http.MethodGet, "/api/auth/me", nil, token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("me", func(t *testing.T) {
		resp, body := api.authed(http.MethodGet, "/api/auth/me", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "admin", decode[Record](t, body)["username"])
	})
}

func TestItemCRUD(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.authed(http.MethodPost, "/api/clientes", Record{"nombre": "José Pérez", "ciudad": "Lima"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[Record](t, body)
	assert.EqualValues(t, 1, created["id"])
	assert.NotEmpty(t, created["created_at"])

	resp, body = api.authed(http.MethodGet, "/api/clientes/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "José Pérez", decode[Record](t, body)["nombre"])

	resp, body = api.authed(http.MethodPut, "/api/clientes/1", Record{"id": 99, "ciudad": "Cusco"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[Record](t, body)
	assert.EqualValues(t, 1, updated["id"])
	assert.Equal(t, "Cusco", updated["ciudad"])
	assert.Equal(t, "José Pérez", updated["nombre"])

	resp, body = api.authed(http.MethodDelete, "/api/clientes/1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, body)

	resp, body = api.authed(http.MethodGet, "/api/clientes/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, decode[ErrorResponse](t, body).Error)

	resp, _ = api.authed(http.MethodDelete, "/api/clientes/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestItemValidation(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.authed(http.MethodPost, "/api/clientes", Record{"ciudad": "Lima"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "This field is required", decode[ErrorResponse](t, body).Errors["nombre"])

	resp, _ = api.authed(http.MethodGet, "/api/clientes/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, api.http.URL+"/api/clientes", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+api.token)
	resp, _ = api.send(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListConvention(t *testing.T) {
	api := newTestAPI(t)
	for _, r := range []Record{
		{"nombre": "José Pérez", "ciudad": "Lima", "saldo_pendiente": "100.50"},
		{"nombre": "Ana Ruiz", "ciudad": "Cusco", "saldo_pendiente": "20"},
		{"nombre": "Luis Jose Díaz", "ciudad": "Lima", "saldo_pendiente": "3"},
	} {
		_, err := api.server.Insert("clientes", r)
		require.NoError(t, err)
	}

	t.Run("pagination", func(t *testing.T) {
		resp, body := api.authed(http.MethodGet, "/api/clientes?page=2&per_page=2", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		page := decode[pageBody](t, body)
		assert.Equal(t, 2, page.Pagina)
		assert.Equal(t, 2, page.TotalPaginas)
		assert.Equal(t, 3, page.TotalItems)
		require.Len(t, page.Data, 1)
	})

	t.Run("page past the end is empty", func(t *testing.T) {
		_, body := api.authed(http.MethodGet, "/api/clientes?page=9", nil)
		page := decode[pageBody](t, body)
		assert.Empty(t, page.Data)
		assert.NotNil(t, page.Data)

		resp, body := api.authed(http.MethodGet, "/api/clientes?page=1844674407370955162&per_page=10", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		page = decode[pageBody](t, body)
		assert.Empty(t, page.Data)
		assert.NotNil(t, page.Data)
		assert.Equal(t, 3, page.TotalItems)
	})

	t.Run("numeric sort desc", func(t *testing.T) {
		_, body := api.authed(http.MethodGet, "/api/clientes?sort_by=saldo_pendiente&sort_order=desc", nil)
		page := decode[pageBody](t, body)
		require.Len(t, page.Data, 3)
		assert.Equal(t, "José Pérez", page.Data[0]["nombre"])
		assert.Equal(t, "Ana Ruiz", page.Data[1]["nombre"])
		assert.Equal(t, "Luis Jose Díaz", page.Data[2]["nombre"])
	})

	t.Run("accent insensitive filter", func(t *testing.T) {
		_, body := api.authed(http.MethodGet, "/api/clientes?nombre=JOSE&ciudad=lima", nil)
		page := decode[pageBody](t, body)
		assert.Len(t, page.Data, 2)
		assert.Equal(t, 2, page.TotalItems)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		resp, body := api.authed(http.MethodGet, "/api/clientes?page=0&per_page=500&sort_by=telefono", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		e := decode[ErrorResponse](t, body)
		assert.Contains(t, e.Errors, "page")
		assert.Contains(t, e.Errors, "per_page")
		assert.Contains(t, e.Errors, "sort_by")
	})
}

func TestListDateRangeAndIDs(t *testing.T) {
	api := newTestAPI(t)
	cliente, err := api.server.Insert("clientes", Record{"nombre": "Ana"})
	require.NoError(t, err)
	for _, fecha := range []string{"2026-01-05", "2026-02-10", "2026-03-15"} {
		_, err := api.server.Insert("ventas", Record{"cliente_id": cliente["id"], "fecha": fecha, "total": "10"})
		require.NoError(t, err)
	}
	_, err = api.server.Insert("ventas", Record{"cliente_id": 42, "fecha": "2026-02-11", "total": "10"})
	require.NoError(t, err)

	_, body := api.authed(http.MethodGet, "/api/ventas?fecha_inicio=2026-02-01&fecha_fin=2026-03-31&cliente_id=1", nil)
	page := decode[pageBody](t, body)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "2026-02-10", page.Data[0]["fecha"], "unsorted lists keep insertion order")
	assert.Equal(t, "2026-03-15", page.Data[1]["fecha"])
	ref := page.Data[0]["cliente"].(map[string]any)
	assert.Equal(t, "Ana", ref["nombre"])
}

func TestUsuarios(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.authed(http.MethodPost, "/api/usuarios", Record{"username": "maria", "password": "secret1", "rol": "gerente"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[Record](t, body)
	assert.NotContains(t, created, "password")

	token := api.login("maria", "secret1")
	_, body = api.do(http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, "gerente", decode[Record](t, body)["rol"])

	resp, _ = api.authed(http.MethodPost, "/api/usuarios", Record{"username": "maria", "password": "x", "rol": "usuario"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = api.authed(http.MethodPost, "/api/usuarios", Record{"username": "pedro", "rol": "jefe"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decode[ErrorResponse](t, body)
	assert.Contains(t, e.Errors, "password")
	assert.Contains(t, e.Errors, "rol")

	id := int64(created["id"].(float64))
	resp, _ = api.authed(http.MethodPut, "/api/usuarios/"+jsonInt(id), Record{"password": "changed1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	api.login("maria", "changed1")

	resp, _ = api.authed(http.MethodDelete, "/api/usuarios/"+jsonInt(id), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = api.do(http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "deleted user")
}

func jsonInt(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}

func multipartBody(t *testing.T, fields map[string]string, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	api := newTestAPI(t)

	post := func(path string, body io.Reader, contentType string) (*http.Response, []byte) {
		req, err := http.NewRequest(http.MethodPost, api.http.URL+path, body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+api.token)
		return api.send(req)
	}

	t.Run("stores the receipt url", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"venta_id": "3", "monto": "150.50", "fecha": "2026-05-01", "metodo_pago": "deposito"},
			"comprobante", "voucher.pdf", "application/pdf", []byte("%PDF-1.4"))
		resp, raw := post("/api/pagos", body, ct)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
		rec := decode[Record](t, raw)
		assert.EqualValues(t, 3, rec["venta_id"])
		assert.Equal(t, "150.50", rec["monto"])
		assert.True(t, strings.HasPrefix(rec["url_comprobante"].(string), "/uploads/pagos/"))
		assert.True(t, strings.HasSuffix(rec["url_comprobante"].(string), "/voucher.pdf"))
	})

	t.Run("multipart update keeps the id", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"venta_id": "3", "monto": "150.50", "fecha": "2026-05-01", "metodo_pago": "deposito"},
			"comprobante", "a.pdf", "application/pdf", []byte("%PDF-1.4"))
		resp, raw := post("/api/pagos", body, ct)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
		created := decode[Record](t, raw)
		id := fmt.Sprint(created["id"])

		body, ct = multipartBody(t, map[string]string{"monto": "75"}, "comprobante", "b.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
		req, err := http.NewRequest(http.MethodPut, api.http.URL+"/api/pagos/"+id, body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", ct)
		req.Header.Set("Authorization", "Bearer "+api.token)
		resp, raw = api.send(req)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
		updated := decode[Record](t, raw)
		assert.Equal(t, created["id"], updated["id"])
		assert.Equal(t, "75", fmt.Sprint(updated["monto"]))
		assert.True(t, strings.HasSuffix(updated["url_comprobante"].(string), "/b.png"))
		assert.NotEqual(t, created["url_comprobante"], updated["url_comprobante"])

		_, raw = api.authed(http.MethodGet, "/api/pagos/"+id, nil)
		stored := decode[Record](t, raw)
		assert.Equal(t, "75", fmt.Sprint(stored["monto"]))
		assert.Equal(t, updated["url_comprobante"], stored["url_comprobante"])
	})

	t.Run("rejects other file types", func(t *testing.T) {
		body, ct := multipartBody(t, nil, "comprobante", "x.exe", "application/octet-stream", []byte("MZ"))
		resp, raw := post("/api/depositos", body, ct)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decode[ErrorResponse](t, raw).Errors, "comprobante")
	})

	t.Run("entities without receipts refuse multipart", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"nombre": "x"}, "foto", "a.png", "image/png", []byte{1})
		resp, _ := post("/api/clientes", body, ct)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})
}

func TestSeed(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.server.Seed(4))

	for _, name := range []string{"almacenes", "clientes", "productos", "presentaciones", "lotes", "ventas", "pedidos", "pagos", "gastos", "depositos"} {
		assert.Equal(t, 4, api.server.Count(name), name)
	}
	assert.Equal(t, 1, api.server.Count("usuarios"), "seed leaves users alone")

	_, body := api.authed(http.MethodGet, "/api/ventas/1", nil)
	venta := decode[Record](t, body)
	ref, ok := venta["cliente"].(map[string]any)
	require.True(t, ok, "cliente reference resolved")
	assert.NotEmpty(t, ref["nombre"])
}

func TestHealthMetricsAndNoRoute(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body := api.do(http.MethodGet, "/nowhere", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, decode[ErrorResponse](t, body).Error)

	resp, body = api.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `appinv_mock_http_requests_total{method="POST",route="/api/auth/login",status="200"}`)
}

func TestAddUser(t *testing.T) {
	api := newTestAPI(t)

	_, err := api.server.AddUser("admin", "other1", "admin")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = api.server.AddUser("", "x", "admin")
	assert.Error(t, err)

	u, err := api.server.AddUser("caja", "caja123", "usuario")
	require.NoError(t, err)
	assert.Equal(t, "caja", u.Username)
	assert.Empty(t, u.Password)
}
