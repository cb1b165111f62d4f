package bugzilla

import (
	"context"
	"strconv"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

// Dup is the end of one bug's duplicate chain.
type Dup struct {
	// Final is the last bug of the chain, zero when the bug is not a
	// duplicate at all.
	Final int
	// Cycle is set when the chain loops back on itself.
	Cycle bool
}

// IsDup reports whether the bug resolved to another bug.
func (d Dup) IsDup() bool {
	return d.Final != 0 || d.Cycle
}

func (d Dup) String() string {
	switch {
	case d.Cycle:
		return "cycle"
	case d.Final == 0:
		return "null"
	default:
		return strconv.Itoa(d.Final)
	}
}

var dupFields = []string{"id", "resolution", "dupe_of"}

// FollowDup resolves, for every id, the final non-duplicate bug of its
// duplicate chain. Each level of the chains is fetched in one batch and
// every bug is fetched at most once.
func (c *Client) FollowDup(ctx context.Context, ids []int) (map[int]Dup, error) {
	dupeOf := map[int]int{}
	fetched := map[int]bool{}

	var pending []int

	for _, id := range ids {
		if !fetched[id] {
			fetched[id] = true
			pending = append(pending, id)
		}
	}

	for len(pending) > 0 {
		fetch, err := c.Get(ctx, Request{
			IDs:           pending,
			IncludeFields: dupFields,
			Bug: query.Observe(func(b Bug) error {
				if b.Resolution == "DUPLICATE" && b.DupeOf != nil {
					dupeOf[b.ID] = *b.DupeOf
				}

				return nil
			}),
		})
		if err != nil {
			return nil, err
		}

		err = fetch.Wait()
		if err != nil {
			return nil, err
		}

		var next []int

		for _, id := range pending {
			target, ok := dupeOf[id]
			if ok && !fetched[target] {
				fetched[target] = true
				next = append(next, target)
			}
		}

		pending = next
	}

	return resolveDups(ids, dupeOf), nil
}

// resolveDups walks the dupe_of links gathered by FollowDup.
func resolveDups(ids []int, dupeOf map[int]int) map[int]Dup {
	out := make(map[int]Dup, len(ids))

	for _, id := range ids {
		target, ok := dupeOf[id]
		if !ok {
			out[id] = Dup{}

			continue
		}

		visited := map[int]bool{id: true}

		for {
			if visited[target] {
				out[id] = Dup{Cycle: true}

				break
			}

			visited[target] = true

			next, ok := dupeOf[target]
			if !ok {
				out[id] = Dup{Final: target}

				break
			}

			target = next
		}
	}

	return out
}
