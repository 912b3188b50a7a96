// Package comments is the per-order conversation and audit log.
//
// Comments are append-only and ordered by creation time. Users post free
// text; the order workflow posts system entries describing each committed
// transition.
package comments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/escrowpi/escrowpi/internal/idgen"
)

var (
	ErrCommentTooLong = errors.New("comment exceeds 500 characters")
	ErrCommentEmpty   = errors.New("comment cannot be empty")
)

// MaxLength is the longest comment a user may post, in characters.
const MaxLength = 500

// YouAlias replaces the author when the viewer wrote the comment.
const YouAlias = "You"

// DefaultListLimit bounds a single List call. Longer threads show their
// newest DefaultListLimit entries.
const DefaultListLimit = 200

// Comment is one entry in an order's conversation.
type Comment struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayAuthor is the author as the viewer should see it.
func (c *Comment) DisplayAuthor(viewer string) string {
	if viewer != "" && c.Author == viewer {
		return YouAlias
	}
	return c.Author
}

// Store persists comments.
type Store interface {
	Add(ctx context.Context, c *Comment) error
	// List returns the newest limit comments of an order, oldest first.
	// A non-positive limit returns the whole thread.
	List(ctx context.Context, orderID string, limit int) ([]*Comment, error)
}

// Latest sorts a thread oldest first and keeps its last limit entries.
// Ties on CreatedAt keep insertion order.
func Latest(thread []*Comment, limit int) []*Comment {
	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].CreatedAt.Before(thread[j].CreatedAt)
	})
	if limit > 0 && len(thread) > limit {
		thread = thread[len(thread)-limit:]
	}
	return thread
}

// NormalizeText trims user input and enforces the length bounds.
func NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrCommentEmpty
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return "", ErrCommentTooLong
	}
	return text, nil
}

// TransitionText is the audit line for a committed status change.
func TransitionText(actor, statusLabel string) string {
	return fmt.Sprintf("User %s has marked the transaction as %s", actor, statusLabel)
}

// Service provides comment operations.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new comment service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Post adds a user comment to an order.
func (s *Service) Post(ctx context.Context, orderID, author, text string) (*Comment, error) {
	text, err := NormalizeText(text)
	if err != nil {
		return nil, err
	}
	return s.add(ctx, &Comment{OrderID: orderID, Author: author, Text: text})
}

// PostSystem adds an audit entry attributed to actor.
func (s *Service) PostSystem(ctx context.Context, orderID, actor, text string) (*Comment, error) {
	return s.add(ctx, &Comment{OrderID: orderID, Author: actor, Text: text, System: true})
}

func (s *Service) add(ctx context.Context, c *Comment) (*Comment, error) {
	if c.ID == "" {
		c.ID = idgen.WithPrefix("cmt_")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if err := s.store.Add(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns an order's comments with the viewer's own entries shown as
// "You". The stored records are not modified.
func (s *Service) List(ctx context.Context, orderID, viewer string) ([]*Comment, error) {
	list, err := s.store.List(ctx, orderID, DefaultListLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*Comment, 0, len(list))
	for _, c := range list {
		cp := *c
		cp.Author = c.DisplayAuthor(viewer)
		out = append(out, &cp)
	}
	return out, nil
}
