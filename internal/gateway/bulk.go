package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/qnadeck/internal/errors"
)

// Format selects the bulk export/import flavor.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Download names for bulk exports.
const (
	ExportFilenameJSON = "qna_backup.json"
	ExportFilenameCSV  = "qna_backup.csv"
)

// ParseFormat accepts "json" or "csv" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("format must be one of: json, csv (got %q)", s))
	}
}

// ExportFilename returns the download name for f.
func ExportFilename(f Format) string {
	if f == FormatCSV {
		return ExportFilenameCSV
	}
	return ExportFilenameJSON
}

// ContentType returns the MIME type of an f export.
func ContentType(f Format) string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// ExportJSON fetches the full JSON dump, indented two spaces for the file.
func (c *Client) ExportJSON(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/bulk/export/json", nil, nil, "")
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("export is not valid JSON: %w", err))
	}
	return out.Bytes(), nil
}

// csvExport is the backend's CSV export envelope.
type csvExport struct {
	CSV string `json:"csv"`
}

// ExportCSV fetches the CSV dump, unwrapped from its {"csv": ...} envelope.
func (c *Client) ExportCSV(ctx context.Context) ([]byte, error) {
	var env csvExport
	if err := c.doJSON(ctx, http.MethodGet, "/bulk/export/csv", nil, nil, &env); err != nil {
		return nil, err
	}
	return []byte(env.CSV), nil
}

// Export fetches a dump in format f.
func (c *Client) Export(ctx context.Context, f Format) ([]byte, error) {
	if f == FormatCSV {
		return c.ExportCSV(ctx)
	}
	return c.ExportJSON(ctx)
}

// ImportJSON uploads a JSON dump as multipart field "file".
func (c *Client) ImportJSON(ctx context.Context, filename string, r io.Reader) (map[string]any, error) {
	return c.Import(ctx, FormatJSON, filename, r)
}

// ImportCSV uploads a CSV dump as multipart field "file".
func (c *Client) ImportCSV(ctx context.Context, filename string, r io.Reader) (map[string]any, error) {
	return c.Import(ctx, FormatCSV, filename, r)
}

// Import uploads r to the f import endpoint. The file is not validated
// locally. The returned map is the backend's JSON reply, or nil when the
// reply is empty or not a JSON object.
func (c *Client) Import(ctx context.Context, f Format, filename string, r io.Reader) (map[string]any, error) {
	body, err := c.uploadFile(ctx, "/bulk/import/"+string(f), filename, r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, nil
	}
	return out, nil
}
