package esdev

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"strings"

	"github.com/google/uuid" // Unique temp index names.
	"github.com/pkg/errors"  // Wrap errors with context.

	"github.com/mintel/elasticsearch-dev/pkg/es"
)

// ElserModelID is the built-in ELSER v2 sparse-vector model.
const ElserModelID = ".elser_model_2"

// elserPipeline is the ingest pipeline that runs documents through ELSER.
const elserPipeline = "elser-embeddings"

// embeddingField returns the name of the sparse-vector field derived from
// a base field name.
func embeddingField(field string) string {
	return field + "_embedding"
}

// SemanticSearchIndexData prepares index for semantic search and loads it
// with documents from a local file (a plain JSON array): it creates the
// index mapping with a sparse-vector field derived from rankField,
// creates the ELSER ingest pipeline, bulk-loads the documents into a
// temporary index, and reindexes them into index through the pipeline,
// waiting for completion. The four response bodies are returned
// concatenated in that order.
//
// The sequence is not transactional: a failure partway through leaves the
// completed steps' effects (index, pipeline, temp index) in place.
func (c *Client) SemanticSearchIndexData(ctx context.Context, file, index, rankField string) (string, error) {
	raw, err := ioutil.ReadFile(file)
	if err != nil {
		return "", errors.Wrapf(err, "error reading document payload %s", file)
	}

	tmpIndex := index + "-raw-" + uuid.New().String()[:8]
	bulkBody, err := es.ToBulkFormat(raw, tmpIndex)
	if err != nil {
		return "", err
	}

	mapping := mustJSON(map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				embeddingField(rankField): map[string]string{"type": "sparse_vector"},
				rankField:                 map[string]string{"type": "text"},
			},
		},
	})

	pipeline := mustJSON(map[string]interface{}{
		"processors": []interface{}{
			map[string]interface{}{
				"inference": map[string]interface{}{
					"model_id": ElserModelID,
					"input_output": []interface{}{
						map[string]string{
							"input_field":  rankField,
							"output_field": embeddingField(rankField),
						},
					},
				},
			},
		},
	})

	reindex := mustJSON(map[string]interface{}{
		"source": map[string]string{"index": tmpIndex},
		"dest":   map[string]string{"index": index, "pipeline": elserPipeline},
	})

	var out strings.Builder
	err = c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		// Target index mapping with the sparse-vector field.
		resp, err := c.do(ctx, d, &es.RequestSpec{
			Method:  "PUT",
			Path:    index,
			Params:  pretty(),
			Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
			Body:    mapping,
		})
		if err != nil {
			return err
		}
		out.WriteString(resp)
		c.suppressReplicas(ctx, d, index)

		// Ingest pipeline referencing the ELSER model.
		resp, err = c.do(ctx, d, &es.RequestSpec{
			Method:  "PUT",
			Path:    "_ingest/pipeline/" + elserPipeline,
			Params:  pretty(),
			Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
			Body:    pipeline,
		})
		if err != nil {
			return err
		}
		out.WriteString(resp)

		// Raw documents into the temp index.
		resp, err = c.do(ctx, d, &es.RequestSpec{
			Method:  "POST",
			Path:    "_bulk",
			Params:  pretty(),
			Headers: map[string]string{es.HeaderContentType: es.ContentTypeNDJSON},
			Body:    []byte(bulkBody),
		})
		if err != nil {
			return err
		}
		out.WriteString(resp)
		c.suppressReplicas(ctx, d, tmpIndex)

		// Reindex through the pipeline, synchronously.
		params := pretty()
		params.Set("wait_for_completion", "true")
		resp, err = c.do(ctx, d, &es.RequestSpec{
			Method:  "POST",
			Path:    "_reindex",
			Params:  params,
			Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
			Body:    reindex,
		})
		if err != nil {
			return err
		}
		out.WriteString(resp)
		return nil
	})
	return out.String(), err
}

// SemanticSearch runs a text_expansion query for query against the
// sparse-vector field derived from field, and returns the raw response
// body.
func (c *Client) SemanticSearch(ctx context.Context, index, field, query string) (string, error) {
	body := mustJSON(map[string]interface{}{
		"query": map[string]interface{}{
			"text_expansion": map[string]interface{}{
				embeddingField(field): map[string]string{
					"model_id":   ElserModelID,
					"model_text": query,
				},
			},
		},
	})

	var out string
	err := c.withService(ctx, func(ctx context.Context, d es.Doer) error {
		resp, err := c.do(ctx, d, &es.RequestSpec{
			Method:  "POST",
			Path:    index + "/_search",
			Params:  pretty(),
			Headers: map[string]string{es.HeaderContentType: es.ContentTypeJSON},
			Body:    body,
		})
		out = resp
		return err
	})
	return out, err
}

// mustJSON marshals a literal request body. It panics only on
// programmer error (unencodable types).
func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
