package repositories

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bimmatch/guard/internal/models"
)

// encodeDocument serializes a document for stores that keep raw bytes
func encodeDocument(doc models.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", models.ErrBadRequest)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	return body, nil
}

// decodeDocument keeps numbers as json.Number so integer fields survive the round trip
func decodeDocument(body []byte) (models.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc models.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorruptRecord, err)
	}
	return doc, nil
}
