package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const uploadResponseSchema = `{
	"type": "object",
	"required": ["task_id", "filename"],
	"properties": {
		"task_id": {"type": "string", "minLength": 1},
		"filename": {"type": "string", "minLength": 1},
		"output_filename": {"type": "string"},
		"task_type": {"type": "string"}
	}
}`

const statusResponseSchema = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"enum": ["PENDING", "PROCESSING", "SUCCESS", "FAILURE"]},
		"result": {"type": ["number", "string", "null"]}
	}
}`

var (
	uploadSchema = jsonschema.MustCompileString("upload_response.json", uploadResponseSchema)
	statusSchema = jsonschema.MustCompileString("status_response.json", statusResponseSchema)
)

func validateUploadResponse(body []byte) error {
	return validate(uploadSchema, body)
}

func validateStatusResponse(body []byte) error {
	return validate(statusSchema, body)
}

func validate(schema *jsonschema.Schema, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
