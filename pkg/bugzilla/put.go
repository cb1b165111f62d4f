package bugzilla

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

type putResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Put applies data to every bug in ids. Bugs are updated in chunks; a chunk
// answered with an error flag is re-sent in the next pass, up to the
// configured number of passes. A non-200 answer is a hard error.
func (c *Client) Put(ctx context.Context, data map[string]any, ids []int) error {
	pending := ids

	for pass := 0; pass < c.putPasses && len(pending) > 0; pass++ {
		var failed []int

		chunks := query.Chunks(pending, query.DefaultChunkSize)
		queries := make([]query.Query, 0, len(chunks))

		for _, chunk := range chunks {
			body := maps.Clone(data)
			if body == nil {
				body = map[string]any{}
			}

			body["ids"] = chunk

			payload, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode update: %w", err)
			}

			handler := query.JSON(query.Observe(func(resp putResponse) error {
				if resp.Error {
					c.logger.WarnContext(ctx, "bugzilla update rejected",
						"bugs", chunk, "pass", pass+1, "message", resp.Message)

					failed = append(failed, chunk...)
				}

				return nil
			}))

			queries = append(queries, query.Query{
				URL:     c.restURL("bug", strconv.Itoa(chunk[0])),
				Method:  http.MethodPut,
				Body:    payload,
				Handler: handler,
			})
		}

		conn, err := c.connect(ctx, queries, query.WithRaiseError(true))
		if err != nil {
			return err
		}

		err = conn.Wait()
		if err != nil {
			return fmt.Errorf("bugzilla update: %w", err)
		}

		pending = failed
	}

	if len(pending) > 0 {
		return fmt.Errorf("%w: bugs %v", ErrPutFailed, pending)
	}

	return nil
}
