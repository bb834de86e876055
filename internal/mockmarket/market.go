// Package mockmarket is an in-memory stand-in for the marketplace buyer API,
// used by cmd/mock and by end-to-end tests.
package mockmarket

import (
	crand "crypto/rand"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const timestampLayout = "2006-01-02T15:04:05"

var pacific = func() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.UTC
	}
	return loc
}()

type Item struct {
	ItemID        int64
	Title         string
	Price         decimal.Decimal
	EndTime       time.Time
	SellerID      int64
	LeadingBidder string
}

type Bid struct {
	Token    string
	ItemID   int64
	Amount   string
	SellerID int64
	At       time.Time
}

type favorite struct {
	watchlistID int64
	notes       string
}

// Market holds items, favorites and bids. One favorites list is shared by
// every token.
type Market struct {
	now func() time.Time

	mu        sync.Mutex
	username  string
	password  string
	tokens    map[string]struct{}
	items     map[int64]Item
	favorites map[int64]*favorite
	nextWatch int64
	bids      []Bid
}

type Options struct {
	// Username and Password are the obfuscated credentials Login accepts.
	// Empty accepts anything non-empty.
	Username string
	Password string
	Now      func() time.Time
}

func New(opts Options) *Market {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Market{
		now:       opts.Now,
		username:  opts.Username,
		password:  opts.Password,
		tokens:    make(map[string]struct{}),
		items:     make(map[int64]Item),
		favorites: make(map[int64]*favorite),
		nextWatch: 5000,
	}
}

func (m *Market) AddItem(it Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ItemID] = it
}

// Favorite adds the item to the favorites list with a note.
func (m *Market) Favorite(itemID int64, notes string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.favoriteLocked(itemID)
	f.notes = notes
	return f.watchlistID
}

// IssueToken registers a token that authenticated calls accept.
func (m *Market) IssueToken() string {
	tok := "mock_" + randString(16)
	m.mu.Lock()
	m.tokens[tok] = struct{}{}
	m.mu.Unlock()
	return tok
}

func (m *Market) Note(itemID int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.favorites[itemID]
	if !ok {
		return "", false
	}
	return f.notes, true
}

func (m *Market) Bids() []Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Bid(nil), m.bids...)
}

func (m *Market) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/signin", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sgw_session", Value: randString(12), Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>sign in</body></html>"))
	})
	r.Post("/SignIn/Login", m.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(m.requireToken)
		r.Post("/SaveSearches/GetSaveSearches", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []any{})
		})
		r.Post("/Favorite/GetAllFavoriteItemsByType", m.handleFavorites)
		r.Get("/Favorite/AddToFavorite", m.handleAddFavorite)
		r.Post("/Favorite/Save", m.handleSaveNote)
		r.Get("/itemDetail/GetItemDetailModelByItemId/{itemId}", m.handleItemDetail)
		r.Post("/ItemBid/PlaceBid", m.handlePlaceBid)
	})
	return r
}

func (m *Market) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		m.mu.Lock()
		_, ok := m.tokens[tok]
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Market) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	ok := body.Username != "" && body.Password != ""
	if m.username != "" || m.password != "" {
		ok = body.Username == m.username && body.Password == m.password
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"message": "The username or password are incorrect"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": m.IssueToken()})
}

func (m *Market) handleFavorites(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.favorites))
	for id := range m.favorites {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	now := m.now()
	data := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		it, ok := m.items[id]
		if !ok || !it.EndTime.After(now) {
			continue
		}
		f := m.favorites[id]
		data = append(data, map[string]any{
			"itemId":       it.ItemID,
			"title":        it.Title,
			"currentPrice": it.Price.InexactFloat64(),
			"endTime":      it.EndTime.In(pacific).Format(timestampLayout) + ".0",
			"notes":        f.notes,
			"sellerId":     it.SellerID,
			"watchlistId":  f.watchlistID,
		})
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (m *Market) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("itemId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid itemId"})
		return
	}
	m.mu.Lock()
	_, known := m.items[id]
	if known {
		m.favoriteLocked(id)
	}
	m.mu.Unlock()
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "item not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": true})
}

func (m *Market) handleSaveNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes       string `json:"notes"`
		WatchlistID int64  `json:"watchlistId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.favorites {
		if f.watchlistID == body.WatchlistID {
			f.notes = body.Notes
			writeJSON(w, http.StatusOK, map[string]any{"status": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"message": "watchlist entry not found"})
}

func (m *Market) handleItemDetail(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	m.mu.Lock()
	it, ok := m.items[id]
	m.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "item not found"})
		return
	}
	summary := []map[string]any{}
	if it.LeadingBidder != "" {
		summary = append(summary, map[string]any{"bidderName": it.LeadingBidder})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"itemId":     it.ItemID,
		"bidHistory": map[string]any{"bidSummary": summary},
	})
}

func (m *Market) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID    int64  `json:"itemId"`
		BidAmount string `json:"bidAmount"`
		SellerID  int64  `json:"sellerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(body.BidAmount)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "invalid amount"})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[body.ItemID]
	now := m.now()
	switch {
	case !ok:
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "Item not found"})
		return
	case !it.EndTime.After(now):
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "<p>Auction has <b>ended</b></p>"})
		return
	case !amount.GreaterThan(it.Price):
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "message": "Bid must exceed the current price"})
		return
	}
	m.bids = append(m.bids, Bid{
		Token:    strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		ItemID:   body.ItemID,
		Amount:   body.BidAmount,
		SellerID: body.SellerID,
		At:       now,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": "<strong>Bid Received!</strong>"})
}

func (m *Market) favoriteLocked(itemID int64) *favorite {
	f, ok := m.favorites[itemID]
	if !ok {
		m.nextWatch++
		f = &favorite{watchlistID: m.nextWatch}
		m.favorites[itemID] = f
	}
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n <= 0 {
		return ""
	}
	raw := make([]byte, n)
	_, _ = crand.Read(raw)
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[int(raw[i])%len(letters)]
	}
	return string(out)
}
