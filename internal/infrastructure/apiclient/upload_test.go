package apiclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/pagos", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "150.50", r.FormValue("monto"))
		assert.Equal(t, "efectivo", r.FormValue("metodo_pago"))

		f, hdr, err := r.FormFile("comprobante")
		require.NoError(t, err)
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "recibo.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "JPEGDATA", string(content))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":11}`))
	}, StaticToken("tok"))

	var out struct {
		ID int64 `json:"id"`
	}
	err := c.Upload(context.Background(), http.MethodPost, "/pagos",
		map[string]string{"monto": "150.50", "metodo_pago": "efectivo"},
		&File{FieldName: "comprobante", FileName: "recibo.jpg", ContentType: "image/jpeg", Content: strings.NewReader("JPEGDATA")},
		&out)
	require.NoError(t, err)
	assert.Equal(t, int64(11), out.ID)
}

func TestUpload_WithoutFile(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "x", r.FormValue("notas"))
		_, _, err := r.FormFile("comprobante")
		assert.Error(t, err)
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	require.NoError(t, c.Upload(context.Background(), http.MethodPut, "/depositos/1",
		map[string]string{"notas": "x"}, nil, nil))
}

func TestUpload_MissingFieldName(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	}, nil)

	err := c.Upload(context.Background(), http.MethodPost, "/pagos", nil,
		&File{Content: strings.NewReader("x")}, nil)
	assert.Error(t, err)
}
