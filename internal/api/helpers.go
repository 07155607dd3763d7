package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

const mimePNG = "image/png"

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, ErrorResponse{Error: ResponseError{Message: msg, Type: errType}})
}

// decodeJSON decodes a request body. An empty body decodes to the zero
// value.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return out, newInvalidRequest(fmt.Sprintf("decode request: %v", err))
	}
	return out, nil
}

// wantsPNG reports whether the caller asked for a rendered chart with
// ?format=png.
func wantsPNG(c *echo.Context) (bool, error) {
	switch f := c.QueryParam("format"); f {
	case "", "json":
		return false, nil
	case "png":
		return true, nil
	default:
		return false, newInvalidRequest(fmt.Sprintf("unsupported format %q", f))
	}
}

func writePNG(c *echo.Context, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.Blob(http.StatusOK, mimePNG, buf.Bytes())
}

func intQuery(c *echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, newInvalidRequest(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return v, nil
}
