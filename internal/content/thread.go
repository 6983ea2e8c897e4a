package content

import "github.com/anonto42/campus-feed/backend/internal/models"

// ThreadComment is a rendered top-level comment with its replies.
type ThreadComment struct {
	models.Comment
	Replies []models.Comment `json:"replies"`
}

// PostView is a post with its comments arranged for display.
type PostView struct {
	*models.Post
	Thread []ThreadComment `json:"thread"`
}

// Thread arranges the flat comment list one level deep. A reply to a reply is
// attached to its nearest top-level ancestor; a comment whose parent was
// deleted is shown at the top level. Append order is kept at both levels.
func Thread(p *models.Post) []ThreadComment {
	byID := make(map[string]*models.Comment, len(p.Comments))
	for i := range p.Comments {
		byID[p.Comments[i].ID] = &p.Comments[i]
	}

	root := func(c *models.Comment) string {
		cur := c
		for hops := 0; hops <= len(p.Comments); hops++ {
			parent, ok := byID[cur.ParentCommentID]
			if cur.ParentCommentID == "" || !ok {
				return cur.ID
			}
			cur = parent
		}
		return c.ID
	}

	out := make([]ThreadComment, 0)
	index := make(map[string]int)
	for i := range p.Comments {
		c := &p.Comments[i]
		r := root(c)
		if r == c.ID {
			index[c.ID] = len(out)
			out = append(out, ThreadComment{Comment: *c, Replies: []models.Comment{}})
			continue
		}
		if j, ok := index[r]; ok {
			out[j].Replies = append(out[j].Replies, *c)
		}
	}
	return out
}

// View builds the display form of p.
func View(p *models.Post) PostView {
	return PostView{Post: p, Thread: Thread(p)}
}
