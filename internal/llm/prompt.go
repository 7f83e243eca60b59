package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const defaultRule = "Extract from data"

const systemPromptWithRules = `You are a product data extraction and content creation specialist.
Your task is to extract and FORMAT product data according to specific rules.

IMPORTANT RULES:
1. For "Passthrough" attributes: Extract exactly as found in the data
2. For "From Data" attributes: Find and extract the value from the content
3. For formatted attributes (name, title): Follow the exact format specified
4. For bullet points: Create SHORT sentences (max 75 characters) highlighting key features
5. For product description: Write unique, engaging content without copying
6. For keywords: Generate relevant SEO keywords separated by commas
7. For "Leave empty" attributes: Return empty string ""

Return ONLY a valid JSON object with the exact attribute names as keys.
If a value cannot be found, use an empty string "".
Do not include any explanation, just the JSON object.`

const systemPromptPlain = `You are a product data extraction specialist.
Extract product attribute values from the provided content accurately.
Return ONLY a valid JSON object with the exact attribute names as keys.
If a value cannot be found, use an empty string "".
Do not include any explanation, just the JSON object.`

func systemPrompt(hasRules bool) string {
	if hasRules {
		return systemPromptWithRules
	}
	return systemPromptPlain
}

// userPrompt renders the extraction request. content and context are
// expected to be truncated already.
func userPrompt(category string, attributes []string, rules map[string]string, content, context string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product Category: %s\n", category)
	if context != "" {
		fmt.Fprintf(&sb, "\nADDITIONAL PRODUCT CONTEXT (MM43 Data):\n%s\n\nUse this MM43 data to help identify and validate product attributes.\n", context)
	}
	sb.WriteString("\nExtract and format values for these attributes following the specified rules:\n")
	for i, a := range attributes {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(a)
		if len(rules) > 0 {
			rule := rules[a]
			if rule == "" {
				rule = defaultRule
			}
			sb.WriteString(": ")
			sb.WriteString(rule)
		}
	}
	fmt.Fprintf(&sb, "\n\nContent to extract from:\n%s\n\n", content)
	sb.WriteString("Return a JSON object with attribute names as keys and properly formatted values.\n")
	sb.WriteString("Example format:\n")
	sb.WriteString(`{"attributes__brand": "Samsung", "attributes__model": "Galaxy S24", ...}`)
	return sb.String()
}

// truncateRunes cuts s to at most n runes. n <= 0 disables the bound.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// stripCodeFence returns the body of the first fenced block when the
// response starts with one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	var body []string
	in := false
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "```") {
			if in {
				break
			}
			in = true
			continue
		}
		if in {
			body = append(body, line)
		}
	}
	return strings.Join(body, "\n")
}

func parseJSONFields(content string) (map[string]any, error) {
	content = stripCodeFence(content)

	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err == nil {
		return fields, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object found in content")
	}

	snippet := content[start : end+1]
	if err := json.Unmarshal([]byte(snippet), &fields); err != nil {
		return nil, err
	}

	return fields, nil
}

// stringify renders a decoded JSON value as attribute text.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
