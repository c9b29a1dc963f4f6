package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
)

// File is the file part of a multipart upload
type File struct {
	FieldName   string // form field, e.g. "comprobante"
	FileName    string
	ContentType string // defaults to application/octet-stream
	Content     io.Reader
}

// Upload sends fields and an optional file as multipart/form-data and decodes
// the JSON response into out. Used by entities that carry a receipt image.
func (c *Client) Upload(ctx context.Context, method, path string, fields map[string]string, file *File, out any) error {
	body, contentType, err := encodeMultipart(fields, file)
	if err != nil {
		return err
	}
	raw, err := c.execute(ctx, Request{Method: method, Path: path}, body, contentType)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func encodeMultipart(fields map[string]string, file *File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	if file != nil && file.Content != nil {
		if file.FieldName == "" {
			return nil, "", fmt.Errorf("file field name is required")
		}
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(file.FieldName), escapeQuotes(file.FileName)))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy file content: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
