package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	"github.com/jacksonlee411/contact-autofill/pkg/httperr"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	errExtractedDataUnparseable = "EXTRACTED_DATA_UNPARSEABLE"
	errExtractedDataShape       = "EXTRACTED_DATA_INVALID"

	extractedDataSchemaURL = "mem://autofill/extracted-data.json"
)

// Extractor output: a flat object of scalars, scalar lists or null.
const extractedDataSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": {
    "oneOf": [
      {"type": ["string", "number", "boolean", "null"]},
      {"type": "array", "items": {"type": ["string", "number", "boolean", "null"]}}
    ]
  }
}`

var (
	extractedSchemaOnce sync.Once
	extractedSchema     *jsonschema.Schema
	extractedSchemaErr  error
)

func compiledExtractedDataSchema() (*jsonschema.Schema, error) {
	extractedSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(extractedDataSchemaURL, strings.NewReader(extractedDataSchema)); err != nil {
			extractedSchemaErr = err
			return
		}
		extractedSchema, extractedSchemaErr = c.Compile(extractedDataSchemaURL)
	})
	return extractedSchema, extractedSchemaErr
}

// ParseExtractedData turns raw extractor output into ordered ExtractedData.
// The output may also arrive as a JSON string holding the model's reply text,
// optionally code-fenced; that text is parsed in its place. Output that is not
// a flat JSON object of supported values yields a partial-data error.
func ParseExtractedData(raw []byte) (types.ExtractedData, error) {
	return parseExtractedData(raw, true)
}

func parseExtractedData(raw []byte, unwrapString bool) (types.ExtractedData, error) {
	body := stripCodeFence(raw)
	if len(body) == 0 {
		return nil, httperr.NewPartialData(errExtractedDataUnparseable, "extractor output is empty", nil)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, httperr.NewPartialData(errExtractedDataUnparseable, "extractor output is not JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, httperr.NewPartialData(errExtractedDataUnparseable, "trailing data after JSON object", err)
	}
	if text, ok := doc.(string); ok && unwrapString {
		return parseExtractedData([]byte(text), false)
	}

	schema, err := compiledExtractedDataSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, httperr.NewPartialData(errExtractedDataShape, "extractor output has an unsupported shape", err)
	}

	return decodeOrdered(body)
}

// decodeOrdered walks the object's tokens so keys keep their source order.
// A repeated key keeps its first position and its last value.
func decodeOrdered(body []byte) (types.ExtractedData, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, httperr.NewPartialData(errExtractedDataUnparseable, "extractor output is not JSON", err)
	}

	out := types.ExtractedData{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, httperr.NewPartialData(errExtractedDataUnparseable, "extractor output is not JSON", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, httperr.NewPartialData(errExtractedDataUnparseable, fmt.Sprintf("unexpected token %v", tok), nil)
		}
		var native any
		if err := dec.Decode(&native); err != nil {
			return nil, httperr.NewPartialData(errExtractedDataUnparseable, "extractor output is not JSON", err)
		}
		value, ok := types.ValueFromNative(native)
		if !ok {
			return nil, httperr.NewPartialData(errExtractedDataShape, fmt.Sprintf("unsupported value for %q", key), nil)
		}
		if i, ok := index[key]; ok {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, types.ExtractedField{Key: key, Value: value})
	}
	return out, nil
}

func stripCodeFence(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
