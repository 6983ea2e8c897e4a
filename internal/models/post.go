package models

import "time"

// CollectionPosts holds posts with their likes and comment arena inline.
const CollectionPosts = "posts"

// Post is a feed entry. Author fields are snapshots taken at creation.
type Post struct {
	ID                 string    `json:"id" bson:"-"`
	AuthorID           string    `json:"authorId" bson:"authorId"`
	AuthorName         string    `json:"authorName" bson:"authorName"`
	AuthorBranch       string    `json:"authorBranch" bson:"authorBranch"`
	AuthorYear         int       `json:"authorYear" bson:"authorYear"`
	Content            string    `json:"content" bson:"content"`
	MediaURL           string    `json:"mediaUrl,omitempty" bson:"mediaUrl,omitempty"`
	MediaType          string    `json:"mediaType,omitempty" bson:"mediaType,omitempty"`
	Likes              []string  `json:"likes" bson:"likes"`
	Comments           []Comment `json:"comments" bson:"comments"`
	CommentSeq         int64     `json:"-" bson:"commentSeq"`
	ThresholdCrossings int64     `json:"-" bson:"thresholdCrossings"`
	CreatedAt          time.Time `json:"createdAt" bson:"createdAt"`
}

// Comment lives in its post's flat comment list. ParentCommentID, when set,
// names another comment of the same post.
type Comment struct {
	ID              string    `json:"id" bson:"id"`
	Seq             int64     `json:"seq" bson:"seq"`
	UserID          string    `json:"userId" bson:"userId"`
	UserName        string    `json:"userName" bson:"userName"`
	Text            string    `json:"text" bson:"text"`
	ParentCommentID string    `json:"parentCommentId,omitempty" bson:"parentCommentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
}

// HasLiked reports whether userID is in the like set.
func (p *Post) HasLiked(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// CommentByID returns the index of the comment, or -1.
func (p *Post) CommentByID(id string) int {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return i
		}
	}
	return -1
}

// CreatePostRequest defines the request body for creating a new post
type CreatePostRequest struct {
	Content   string `json:"content" validate:"max=2000"`
	MediaURL  string `json:"mediaUrl,omitempty" validate:"omitempty,url"`
	MediaType string `json:"mediaType,omitempty" validate:"required_with=MediaURL,omitempty,oneof=image video"`
}

// CreateCommentRequest defines the request body for commenting or replying
type CreateCommentRequest struct {
	Text            string `json:"text" validate:"required,min=1,max=500"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}
