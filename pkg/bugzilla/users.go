package bugzilla

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

type usersResponse struct {
	Users []User `json:"users"`
}

// SearchUsers returns the accounts whose login or real name matches match.
func (c *Client) SearchUsers(ctx context.Context, match string) ([]User, error) {
	return c.users(ctx, []url.Values{{"match": {match}}})
}

// GetUsers fetches accounts by numeric id.
func (c *Client) GetUsers(ctx context.Context, ids []int) ([]User, error) {
	var params []url.Values

	for _, chunk := range query.Chunks(ids, query.DefaultChunkSize) {
		p := url.Values{}
		for _, id := range chunk {
			p.Add("ids", strconv.Itoa(id))
		}

		params = append(params, p)
	}

	return c.users(ctx, params)
}

// GetUsersByName fetches accounts by login name.
func (c *Client) GetUsersByName(ctx context.Context, names []string) ([]User, error) {
	var params []url.Values

	for _, chunk := range query.Chunks(names, query.DefaultChunkSize) {
		params = append(params, url.Values{"names": chunk})
	}

	return c.users(ctx, params)
}

func (c *Client) users(ctx context.Context, params []url.Values) ([]User, error) {
	if len(params) == 0 {
		return nil, nil
	}

	var users []User

	handler := query.JSON(query.Observe(func(resp usersResponse) error {
		users = append(users, resp.Users...)

		return nil
	}))

	conn, err := c.connect(ctx, []query.Query{query.NewQuery(c.restURL("user"), handler, params...)})
	if err != nil {
		return nil, err
	}

	err = conn.Wait()
	if err != nil {
		return nil, err
	}

	return users, nil
}
