package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot_CopiesAndSorts(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []Listing{{ItemID: 30}, {ItemID: 10}, {ItemID: 20}}

	snap := NewSnapshot(in, at)
	in[0].Title = "mutated"

	require.Len(t, snap.Listings, 3)
	assert.Equal(t, int64(10), snap.Listings[0].ItemID)
	assert.Equal(t, int64(30), snap.Listings[2].ItemID)
	assert.Empty(t, snap.Listings[2].Title)
	assert.Equal(t, 5*time.Minute, snap.Age(at.Add(5*time.Minute)))
}

func TestSnapshotLookup(t *testing.T) {
	snap := NewSnapshot([]Listing{{ItemID: 7, Title: "lamp"}, {ItemID: 3}}, time.Now())

	l, ok := snap.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, "lamp", l.Title)

	_, ok = snap.Lookup(5)
	assert.False(t, ok)
	assert.True(t, Snapshot{}.Empty())
}

func TestCredentialUsable(t *testing.T) {
	assert.True(t, Credential{Kind: CredentialAccessToken, Token: "abc"}.Usable())
	assert.False(t, Credential{Kind: CredentialAccessToken, Token: "  "}.Usable())
	assert.False(t, Credential{Kind: CredentialPlaintextPassword, Username: "u"}.Usable())
	assert.True(t, Credential{Kind: CredentialEncryptedPassword, Username: "u", Password: "p"}.Usable())
	assert.Less(t, CredentialAccessToken.Rank(), CredentialEncryptedPassword.Rank())
	assert.Less(t, CredentialEncryptedPassword.Rank(), CredentialPlaintextPassword.Rank())
}
