package reddit

import "time"

// Post mirrors the fields of a link/self post returned by the platform's
// listing endpoints.
type Post struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"` // fullname, e.g. "t3_abc123"
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Ups         int     `json:"ups"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
}

// CreatedAt converts the epoch timestamp to time.Time. The zero time
// means the platform supplied no timestamp.
func (p Post) CreatedAt() time.Time {
	if p.CreatedUTC == 0 {
		return time.Time{}
	}
	return time.Unix(int64(p.CreatedUTC), 0).UTC()
}

// listing is the platform's generic envelope for post collections.
type listing struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (l listing) posts() []Post {
	posts := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts
}
