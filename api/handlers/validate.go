package handlers

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed request_schema.json
var requestSchemaJSON []byte

// RequestValidator 在解码前按 JSON Schema 检查请求体结构
type RequestValidator struct {
	schema *gojsonschema.Schema
}

// NewRequestValidator 编译内嵌的请求 schema
func NewRequestValidator() (*RequestValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(requestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &RequestValidator{schema: schema}, nil
}

// MustRequestValidator 与 NewRequestValidator 相同，失败时 panic
func MustRequestValidator() *RequestValidator {
	v, err := NewRequestValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate 返回 nil 或一条汇总所有问题的错误
func (v *RequestValidator) Validate(body []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return fmt.Errorf("request does not match schema: %s", strings.Join(errs, "; "))
}
