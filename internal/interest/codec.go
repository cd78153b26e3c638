package interest

import (
	"encoding/json"
	"fmt"
)

func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode hashed interests: %w", err)
	}
	return raw, nil
}

func decodeDocument(raw []byte) (Document, error) {
	doc := Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode hashed interests: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
