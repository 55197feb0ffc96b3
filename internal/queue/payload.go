/**
 * Audit job payloads
 *
 * Payloads arrive from the TypeScript gateway through Redis or asynq and from
 * the HTTP API. fileBuffer may be a base64 string or a serialized Node Buffer.
 */

package queue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/adverant/nexus/extraction-auditor/internal/processor"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JobPayload contains the audit job data
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 `json:"-"` // set by UnmarshalJSON
	Text       string                 `json:"text,omitempty"`
	Options    processor.AuditOptions `json:"options,omitempty"`
}

// UnmarshalJSON handles both fileBuffer encodings
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.FileBuffer == nil {
		return nil
	}

	switch v := aux.FileBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		p.FileBuffer = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FileBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FileBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// MarshalJSON writes fileBuffer as base64
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	aux := struct {
		FileBuffer string `json:"fileBuffer,omitempty"`
		Alias
	}{
		Alias: Alias(p),
	}
	if len(p.FileBuffer) > 0 {
		aux.FileBuffer = base64.StdEncoding.EncodeToString(p.FileBuffer)
	}
	return json.Marshal(aux)
}

// ToRequest converts the payload into a processor request
func (p *JobPayload) ToRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:      p.JobID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		FileSize:   p.FileSize,
		FileURL:    p.FileURL,
		FileBuffer: p.FileBuffer,
		Text:       p.Text,
		Options:    p.Options,
	}
}

// payloadSchema describes the wire shape. jobId is optional here because the
// HTTP API assigns one when it is missing.
const payloadSchema = `{
  "type": "object",
  "properties": {
    "jobId":    {"type": "string"},
    "filename": {"type": "string"},
    "mimeType": {"type": "string"},
    "fileSize": {"type": "integer", "minimum": 0},
    "fileUrl":  {"type": "string", "minLength": 1},
    "fileBuffer": {
      "oneOf": [
        {"type": "string"},
        {
          "type": "object",
          "required": ["type", "data"],
          "properties": {
            "type": {"const": "Buffer"},
            "data": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 255}}
          }
        }
      ]
    },
    "text": {"type": "string"},
    "options": {
      "type": "object",
      "properties": {
        "sampleOcrPages": {"type": "integer", "minimum": 0},
        "skipLayout":     {"type": "boolean"},
        "skipOcr":        {"type": "boolean"}
      },
      "additionalProperties": false
    }
  },
  "anyOf": [
    {"required": ["fileBuffer"]},
    {"required": ["fileUrl"]},
    {"required": ["text"]}
  ]
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("audit-job.json", bytes.NewReader([]byte(payloadSchema))); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("audit-job.json")
	})
	return compiledSchema, schemaErr
}

// ValidatePayload checks raw payload JSON against the job schema
func ValidatePayload(data []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}

// DecodePayload validates and decodes a job payload
func DecodePayload(data []byte) (*JobPayload, error) {
	if err := ValidatePayload(data); err != nil {
		return nil, err
	}
	var p JobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
