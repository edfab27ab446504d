package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// Layout names the collections and fields the directory reads and writes.
type Layout struct {
	UsersCollection string
	ChatsCollection string
	TokensField     string
}

// DefaultLayout matches the mobile app's schema:
// users/{userId}.fcmTokens and chats/{chatId}.participants.
func DefaultLayout() Layout {
	return Layout{
		UsersCollection: "users",
		ChatsCollection: "chats",
		TokensField:     "fcmTokens",
	}
}

// Directory implements dispatch.Directory using Google Cloud Firestore.
type Directory struct {
	client *firestore.Client
	layout Layout
}

func NewDirectory(client *firestore.Client, layout Layout) *Directory {
	def := DefaultLayout()
	if layout.UsersCollection == "" {
		layout.UsersCollection = def.UsersCollection
	}
	if layout.ChatsCollection == "" {
		layout.ChatsCollection = def.ChatsCollection
	}
	if layout.TokensField == "" {
		layout.TokensField = def.TokensField
	}
	return &Directory{client: client, layout: layout}
}

// userRecord is the internal DB representation; the tokens field name is
// configurable so it is read from the raw map rather than a struct tag.
type userRecord struct {
	FirstName      string   `firestore:"firstName"`
	FriendRequests []string `firestore:"friendRequests"`
}

func (d *Directory) GetUser(ctx context.Context, userID string) (*notification.UserRecord, error) {
	snap, err := d.userRef(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("firestore get user %s failed: %w", userID, err)
	}

	var rec userRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("firestore decode user %s failed: %w", userID, err)
	}

	return &notification.UserRecord{
		ID:             userID,
		FirstName:      rec.FirstName,
		Tokens:         stringSlice(snap.Data()[d.layout.TokensField]),
		FriendRequests: rec.FriendRequests,
	}, nil
}

// GetProfile reads the same user document as GetUser and keeps only the
// display fields.
func (d *Directory) GetProfile(ctx context.Context, userID string) (*notification.UserProfile, error) {
	user, err := d.GetUser(ctx, userID)
	if err != nil || user == nil {
		return nil, err
	}
	return &notification.UserProfile{ID: user.ID, FirstName: user.FirstName}, nil
}

func (d *Directory) GetChat(ctx context.Context, chatID string) (*notification.ChatRecord, error) {
	snap, err := d.client.Collection(d.layout.ChatsCollection).Doc(chatID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("firestore get chat %s failed: %w", chatID, err)
	}

	var chat notification.ChatRecord
	if err := snap.DataTo(&chat); err != nil {
		return nil, fmt.Errorf("firestore decode chat %s failed: %w", chatID, err)
	}
	return &chat, nil
}

// RemoveTokens issues a single field update with ArrayRemove, which the
// server applies atomically and which ignores values that are not present.
// A missing user document means there is nothing to remove.
func (d *Directory) RemoveTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	values := make([]interface{}, len(tokens))
	for i, t := range tokens {
		values[i] = t
	}

	_, err := d.userRef(userID).Update(ctx, []firestore.Update{
		{Path: d.layout.TokensField, Value: firestore.ArrayRemove(values...)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("firestore remove tokens for %s failed: %w", userID, err)
	}
	return nil
}

// userRef: users/{userID}
func (d *Directory) userRef(userID string) *firestore.DocumentRef {
	return d.client.Collection(d.layout.UsersCollection).Doc(userID)
}

// stringSlice keeps the string elements of a Firestore array value.
func stringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
