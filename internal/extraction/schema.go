package extraction

import (
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// billSchemaJSON is the canonical contract for extracted bill data. It is
// compiled locally to validate model output, and mirrored as a genai response
// schema so Gemini is constrained to the same shape. Ollama providers embed it
// verbatim in the prompt.
const billSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "invoiceNumber": {"type": "string", "description": "The unique invoice or bill number."},
    "invoiceDate": {"type": "string", "description": "The date the bill was issued."},
    "seller": {"type": "string", "description": "The company or seller who issued the bill."},
    "customer": {"type": "string", "description": "The customer the bill is addressed to."},
    "currency": {"type": "string", "description": "The currency of the grand total (e.g. USD, INR)."},
    "grandTotal": {"type": "number", "description": "The final total amount paid."},
    "items": {
      "type": "array",
      "description": "All individual products or services purchased, in document order.",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "description": {"type": "string"},
          "quantity": {"type": "number"},
          "unitPrice": {"type": "number"},
          "amount": {"type": "number"}
        },
        "required": ["description", "quantity", "unitPrice", "amount"]
      }
    }
  },
  "required": ["invoiceNumber", "invoiceDate", "seller", "grandTotal", "items"]
}`

// billSchema is the compiled validator for billSchemaJSON
var billSchema = mustCompileBillSchema()

func mustCompileBillSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("bill.schema.json", strings.NewReader(billSchemaJSON)); err != nil {
		panic(err)
	}
	return c.MustCompile("bill.schema.json")
}

// billResponseSchema builds the genai response schema matching billSchemaJSON.
// Gemini enforces this server-side when ResponseMIMEType is application/json.
func billResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"invoiceNumber": {Type: genai.TypeString, Description: "The unique invoice or bill number."},
			"invoiceDate":   {Type: genai.TypeString, Description: "The date the bill was issued."},
			"seller":        {Type: genai.TypeString, Description: "The company or seller who issued the bill."},
			"customer":      {Type: genai.TypeString, Description: "The customer the bill is addressed to."},
			"currency":      {Type: genai.TypeString, Description: "The currency of the grand total (e.g. USD, INR)."},
			"grandTotal":    {Type: genai.TypeNumber, Description: "The final total amount paid."},
			"items": {
				Type:        genai.TypeArray,
				Description: "All individual products or services purchased, in document order.",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"description": {Type: genai.TypeString},
						"quantity":    {Type: genai.TypeNumber},
						"unitPrice":   {Type: genai.TypeNumber},
						"amount":      {Type: genai.TypeNumber},
					},
					Required: []string{"description", "quantity", "unitPrice", "amount"},
				},
			},
		},
		Required: []string{"invoiceNumber", "invoiceDate", "seller", "grandTotal", "items"},
	}
}
