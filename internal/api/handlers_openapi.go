package api

import (
	_ "embed"
	"fmt"
	"net/http"
	"strconv"
)

//go:embed openapi/openapi.yaml
var openAPISpec []byte

// docsCacheControl applies to both the document and the UI page; neither
// changes without a deploy.
const docsCacheControl = "public, max-age=3600"

// swaggerUIPage is filled with the quoted spec URL.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Captcha Service API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: %s,
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      deepLinking: true,
      displayRequestDuration: true,
      tryItOutEnabled: true
    });
  </script>
</body>
</html>`

// setSpecURL points the docs page at the route serving the document.
func (h *Handlers) setSpecURL(path string) {
	h.docsPage = []byte(fmt.Sprintf(swaggerUIPage, strconv.Quote(path)))
}

// ServeOpenAPISpec serves the embedded OpenAPI 3.0.3 document
// GET /api/captcha/openapi.yaml
func (h *Handlers) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, "application/yaml", openAPISpec)
}

// ServeSwaggerUI serves the interactive API explorer
// GET /api/captcha/docs
func (h *Handlers) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	writeDocument(w, "text/html; charset=utf-8", h.docsPage)
}

func writeDocument(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", docsCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
