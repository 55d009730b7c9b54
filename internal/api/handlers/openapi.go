package handlers

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiSpec []byte

// OpenAPIHandler отдаёт контракт API в формате JSON.
// Контракт проверяется на валидность при создании обработчика,
// чтобы ошибка в описании обнаруживалась при старте, а не в рантайме.
type OpenAPIHandler struct {
	specJSON []byte
}

func NewOpenAPIHandler() (*OpenAPIHandler, error) {
	loader := openapi3.NewLoader()
	loader.Context = context.Background()

	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI контракта: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI контракта: %w", err)
	}

	specJSON, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI контракта: %w", err)
	}

	return &OpenAPIHandler{specJSON: specJSON}, nil
}

// Spec обрабатывает GET /openapi.json
func (h *OpenAPIHandler) Spec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.specJSON)
}
