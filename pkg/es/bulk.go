package es

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson" // Dynamic JSON parsing.
)

// ToBulkFormat converts a JSON array of documents into the newline-delimited
// action/document pair format consumed by the Elasticsearch _bulk API. For
// each document it emits an action line naming the target index, then the
// document's own serialization, in input order, with a trailing newline.
//
// ToBulkFormat is a pure function: the same input always yields byte-identical
// output. A MalformedInputError is returned if docs is not a JSON array of
// objects.
func ToBulkFormat(docs []byte, index string) (string, error) {
	if !gjson.ValidBytes(docs) {
		return "", &MalformedInputError{Reason: "document payload is not valid JSON"}
	}
	parsed := gjson.ParseBytes(docs)
	if !parsed.IsArray() {
		return "", &MalformedInputError{Reason: "document payload is not a JSON array"}
	}

	action, err := json.Marshal(map[string]map[string]string{
		"index": {"_index": index},
	})
	if err != nil {
		return "", &MalformedInputError{Reason: "index name is not JSON-encodable: " + err.Error()}
	}

	var buf bytes.Buffer
	var malformed *MalformedInputError
	parsed.ForEach(func(_, doc gjson.Result) bool {
		if !doc.IsObject() {
			malformed = &MalformedInputError{Reason: "document is not a JSON object: " + doc.Raw}
			return false
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.WriteString(doc.Raw)
		buf.WriteByte('\n')
		return true
	})
	if malformed != nil {
		return "", malformed
	}
	return buf.String(), nil
}
