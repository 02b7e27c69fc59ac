package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

const instruction = "Your goal is to extract structured information from the user's input that matches the form described below. " +
	"When extracting information please make sure it matches the type information exactly. " +
	"Do not add any attributes that do not appear in the schema shown below."

const outputRule = "Please output the extracted information in JSON format. " +
	"Do not output anything except for the extracted information. " +
	"If a field is not present in the text, leave it empty. " +
	"Wrap the JSON in <json> tags."

// describe renders the schema as a TypeScript-like type.
func describe(s *Object) string {
	sb := strings.Builder{}
	sb.WriteString(s.ID)
	sb.WriteString(": ")
	if s.Many {
		sb.WriteString("Array<")
	}
	sb.WriteString("{ // ")
	sb.WriteString(s.Description)
	sb.WriteString("\n")
	for _, attr := range s.Attributes {
		typ := "string"
		if attr.Many {
			typ = "Array<string>"
		}
		sb.WriteString(fmt.Sprintf(" %s: %s // %s\n", attr.ID, typ, attr.Description))
	}
	sb.WriteString("}")
	if s.Many {
		sb.WriteString(">")
	}
	return sb.String()
}

func examples(s *Object) []Example {
	out := make([]Example, 0, len(s.Examples))
	for _, ex := range s.Examples {
		out = append(out, Example{Input: ex.Input, Output: wrapJSON(s.ID, json.RawMessage(ex.Output))})
	}
	for _, attr := range s.Attributes {
		for _, ex := range attr.Examples {
			var value interface{} = ex.Output
			if attr.Many {
				value = []string{ex.Output}
			}
			var record interface{} = map[string]interface{}{attr.ID: value}
			if s.Many {
				record = []interface{}{record}
			}
			raw, _ := json.Marshal(record)
			out = append(out, Example{Input: ex.Input, Output: wrapJSON(s.ID, raw)})
		}
	}
	return out
}

func wrapJSON(id string, value json.RawMessage) string {
	raw, err := json.Marshal(map[string]json.RawMessage{id: value})
	if err != nil {
		return ""
	}
	return "<json>" + string(raw) + "</json>"
}

// BuildPrompt renders the extraction request for one text segment.
func BuildPrompt(s *Object, text string) string {
	sb := strings.Builder{}
	sb.WriteString(instruction)
	sb.WriteString("\n\n```TypeScript\n\n")
	sb.WriteString(describe(s))
	sb.WriteString("\n```\n\n")
	sb.WriteString(outputRule)
	sb.WriteString("\n\n")
	for _, ex := range examples(s) {
		sb.WriteString("Input: ")
		sb.WriteString(ex.Input)
		sb.WriteString("\nOutput: ")
		sb.WriteString(ex.Output)
		sb.WriteString("\n")
	}
	sb.WriteString("Input: ")
	sb.WriteString(text)
	sb.WriteString("\nOutput: ")
	return sb.String()
}
