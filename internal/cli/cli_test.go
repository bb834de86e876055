package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodwill_sniper/internal/auth"
	"goodwill_sniper/internal/mockmarket"
	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/note"
)

type harness struct {
	market *mockmarket.Market
	url    string
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, key := range []string{"SHOPGOODWILL_ACCESS_TOKEN", "SHOPGOODWILL_USERNAME", "SHOPGOODWILL_PASSWORD"} {
		t.Setenv(key, "")
	}
	m := mockmarket.New(mockmarket.Options{})
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)
	m.AddItem(mockmarket.Item{ItemID: 200001, Title: "Brass lamp", Price: decimal.NewFromInt(12), EndTime: time.Now().Add(2 * time.Hour), SellerID: 7})
	m.AddItem(mockmarket.Item{ItemID: 200002, Title: "Vase", Price: decimal.NewFromInt(3), EndTime: time.Now().Add(3 * time.Hour), SellerID: 8})
	return &harness{market: m, url: srv.URL, dir: t.TempDir()}
}

func (h *harness) config(t *testing.T, authBlock string) string {
	t.Helper()
	cfg := fmt.Sprintf(`auth_info:
%s
provider:
  base_url: %s
  login_page_url: %s/signin
  timeout_ms: 3000
logging:
  console: false
storage:
  sqlite_path: %s
`, authBlock, h.url, h.url, filepath.Join(h.dir, "sniper.db"))
	path := filepath.Join(h.dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := &App{}
	root := NewRootCmd(app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	defer app.close()
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScheduleBid_FavoritesAndWritesNote(t *testing.T) {
	h := newHarness(t)
	path := h.config(t, "  access_token: "+h.market.IssueToken())

	out, err := execute(t, "--config", path, "schedule-bid", "200001", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduled max bid 25.00 on 200001 (Brass lamp)")

	text, ok := h.market.Note(200001)
	require.True(t, ok)
	maxBid, ok := note.Parse(text)
	require.True(t, ok)
	assert.Equal(t, "25", maxBid.String())
}

func TestScheduleBid_KeepsExistingNoteFields(t *testing.T) {
	h := newHarness(t)
	h.market.Favorite(200002, `{"max_bid": 2, "why": "matches set"}`)
	path := h.config(t, "  username: someone@example.com\n  password: hunter2")

	_, err := execute(t, "--config", path, "schedule-bid", "200002", "40.5")
	require.NoError(t, err)

	text, _ := h.market.Note(200002)
	maxBid, ok := note.Parse(text)
	require.True(t, ok)
	assert.Equal(t, "40.5", maxBid.String())
	assert.Equal(t, "matches set", note.Metadata(text)["why"])
}

func TestScheduleBid_BadArguments(t *testing.T) {
	h := newHarness(t)
	path := h.config(t, "  access_token: "+h.market.IssueToken())

	_, err := execute(t, "--config", path, "schedule-bid", "abc", "25")
	assert.ErrorContains(t, err, "invalid item id")
	_, err = execute(t, "--config", path, "schedule-bid", "200001", "0")
	assert.ErrorContains(t, err, "invalid amount")
	_, err = execute(t, "--config", path, "schedule-bid", "999", "5")
	assert.Error(t, err)
}

func TestFavorites_JSON(t *testing.T) {
	h := newHarness(t)
	h.market.Favorite(200001, `{"max_bid": 20}`)
	path := h.config(t, "  access_token: "+h.market.IssueToken())

	out, err := execute(t, "--config", path, "favorites", "--json")
	require.NoError(t, err)
	var listings []model.Listing
	require.NoError(t, json.Unmarshal([]byte(out), &listings))
	require.Len(t, listings, 1)
	assert.Equal(t, int64(200001), listings[0].ItemID)
	assert.Equal(t, "12", listings[0].CurrentPrice.String())
	assert.NotZero(t, listings[0].WatchlistID)

	out, err = execute(t, "--config", path, "favorites")
	require.NoError(t, err)
	assert.Contains(t, out, "MAX BID")
	assert.Contains(t, out, "20.00")
	assert.Contains(t, out, "Brass lamp")
}

func TestAuthCheck(t *testing.T) {
	h := newHarness(t)

	path := h.config(t, "  access_token: stale\n  username: someone@example.com\n  password: hunter2")
	out, err := execute(t, "--config", path, "auth", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "command account: ok (plaintext_password)")

	path = h.config(t, "  access_token: stale")
	_, err = execute(t, "--config", path, "auth", "check")
	var aerr *auth.Error
	assert.ErrorAs(t, err, &aerr)

	path = h.config(t, fmt.Sprintf("  auth_type: command_bid\n  command_account:\n    access_token: %s\n  bid_account:\n    access_token: %s", h.market.IssueToken(), h.market.IssueToken()))
	out, err = execute(t, "--config", path, "auth", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "command account: ok (access_token)")
	assert.Contains(t, out, "bid account: ok (access_token)")
}

func TestAuthEncrypt(t *testing.T) {
	h := newHarness(t)
	path := h.config(t, "  access_token: x")
	out, err := execute(t, "--config", path, "auth", "encrypt", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, auth.Obfuscate("hunter2")+"\n", out)
}

func TestLeaderWindow(t *testing.T) {
	assert.Equal(t, 10*time.Minute, leaderWindow(10*time.Minute, 30*time.Second))
	assert.Equal(t, 20*time.Minute, leaderWindow(0, 10*time.Minute))
}
