// Package resource binds an entity type to its REST endpoint and describes
// every entity (columns, filters, defaults) as data.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/erp/appinv/internal/domain/shared"
	"github.com/erp/appinv/internal/infrastructure/apiclient"
)

// Resource performs the list and item calls of one endpoint. It is both the
// fetch function of a list controller and the adapter of an item controller.
type Resource[T any] struct {
	client    *apiclient.Client
	endpoint  string
	fileField string
}

// New binds T to endpoint (e.g. "/clientes")
func New[T any](client *apiclient.Client, endpoint string) *Resource[T] {
	return &Resource[T]{
		client:   client,
		endpoint: "/" + strings.Trim(endpoint, "/"),
	}
}

// ForEntity binds T to the endpoint of a registry entry
func ForEntity[T any](client *apiclient.Client, e Entity) *Resource[T] {
	r := New[T](client, e.Endpoint)
	if e.Upload != nil {
		r.fileField = e.Upload.Field
	}
	return r
}

// Endpoint returns the collection path
func (r *Resource[T]) Endpoint() string {
	return r.endpoint
}

func (r *Resource[T]) itemPath(id shared.ID) string {
	return r.endpoint + "/" + strconv.FormatInt(id, 10)
}

// List fetches one page: GET <endpoint>?page=&per_page=&<filters>&sort_by=&sort_order=
func (r *Resource[T]) List(ctx context.Context, q shared.ListQuery) (*shared.Page[T], error) {
	var page shared.Page[T]
	if err := r.client.Get(ctx, r.endpoint, q.Values(), &page); err != nil {
		return nil, err
	}
	if page.Data == nil {
		page.Data = []T{}
	}
	return &page, nil
}

// Get fetches one entity
func (r *Resource[T]) Get(ctx context.Context, id shared.ID) (*T, error) {
	out := new(T)
	if err := r.client.Get(ctx, r.itemPath(id), nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts data. An empty response body returns data unchanged.
func (r *Resource[T]) Create(ctx context.Context, data *T) (*T, error) {
	return r.send(ctx, http.MethodPost, r.endpoint, data)
}

// Update puts data to the entity id
func (r *Resource[T]) Update(ctx context.Context, id shared.ID, data *T) (*T, error) {
	return r.send(ctx, http.MethodPut, r.itemPath(id), data)
}

// Delete removes the entity id
func (r *Resource[T]) Delete(ctx context.Context, id shared.ID) error {
	return r.client.Delete(ctx, r.itemPath(id), nil)
}

// Upload creates data as multipart form with an attached receipt
func (r *Resource[T]) Upload(ctx context.Context, data *T, file *apiclient.File) (*T, error) {
	return r.upload(ctx, http.MethodPost, r.endpoint, data, file)
}

// UploadUpdate updates id as multipart form with an attached receipt
func (r *Resource[T]) UploadUpdate(ctx context.Context, id shared.ID, data *T, file *apiclient.File) (*T, error) {
	return r.upload(ctx, http.MethodPut, r.itemPath(id), data, file)
}

func (r *Resource[T]) send(ctx context.Context, method, path string, data *T) (*T, error) {
	var raw json.RawMessage
	if err := r.client.Do(ctx, apiclient.Request{Method: method, Path: path, Body: data}, &raw); err != nil {
		return nil, err
	}
	return decodeEntity(raw, data)
}

func (r *Resource[T]) upload(ctx context.Context, method, path string, data *T, file *apiclient.File) (*T, error) {
	fields, err := FormFields(data)
	if err != nil {
		return nil, err
	}
	if file != nil && file.FieldName == "" {
		if r.fileField == "" {
			return nil, fmt.Errorf("%s does not accept file uploads", r.endpoint)
		}
		f := *file
		f.FieldName = r.fileField
		file = &f
	}

	var raw json.RawMessage
	if err := r.client.Upload(ctx, method, path, fields, file, &raw); err != nil {
		return nil, err
	}
	return decodeEntity(raw, data)
}

func decodeEntity[T any](raw json.RawMessage, fallback *T) (*T, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fallback, nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode entity: %w", err)
	}
	return out, nil
}

// FormFields flattens the JSON form of v into multipart fields. Nested
// objects and arrays are sent as JSON text, nulls are omitted.
func FormFields(v any) (map[string]string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("form must encode to a JSON object: %w", err)
	}

	fields := make(map[string]string, len(doc))
	for k, val := range doc {
		switch x := val.(type) {
		case nil:
		case string:
			fields[k] = x
		case json.Number:
			fields[k] = x.String()
		case bool:
			fields[k] = strconv.FormatBool(x)
		default:
			nested, err := json.Marshal(x)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
			}
			fields[k] = string(nested)
		}
	}
	return fields, nil
}
