package provider

import (
	"context"
	"errors"

	"goodwill_sniper/internal/model"
)

var (
	// ErrRejected means the marketplace refused a credential or token.
	ErrRejected = errors.New("credential rejected")
	// ErrUnauthorized is a 401 on an authenticated call. The request had no effect.
	ErrUnauthorized = errors.New("session unauthorized")
	// ErrBidRejected means the marketplace declined the bid itself.
	ErrBidRejected = errors.New("bid rejected")
)

type BidResult struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

type AuthTransport interface {
	ValidateToken(ctx context.Context, token string) error
	// Login returns a session holding the bearer token and login cookies.
	Login(ctx context.Context, encUsername, encPassword string) (model.Session, error)
}

type ListingTransport interface {
	FetchFavorites(ctx context.Context, session model.Session) ([]model.Listing, error)
}

type BidTransport interface {
	PlaceBid(ctx context.Context, session model.Session, intent model.BidIntent) (BidResult, error)
}

type NoteTransport interface {
	AddFavorite(ctx context.Context, session model.Session, itemID int64) error
	SetFavoriteNote(ctx context.Context, session model.Session, watchlistID int64, note string) error
}

// Marketplace is everything the sniper needs from the auction site.
type Marketplace interface {
	AuthTransport
	ListingTransport
	BidTransport
	NoteTransport
	Name() string
}
