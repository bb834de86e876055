package shopgoodwill

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"goodwill_sniper/internal/config"
	"goodwill_sniper/internal/logbus"
	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/note"
	"goodwill_sniper/internal/provider"
)

const (
	// login fields the web client sends verbatim
	loginBrowser    = "firefox"
	loginClientIP   = "0.0.0.4"
	loginAppVersion = "00099a1be3bb023ff17d"

	badCredentialsMessage = "The username or password are incorrect"

	defaultLeaderWindow = 10 * time.Minute
)

type Options struct {
	// LookupLeaders fetches the leading bidder of listings ending within
	// LeaderWindow. Only needed when a friend list is configured.
	LookupLeaders bool
	LeaderWindow  time.Duration
	Now           func() time.Time
}

type Client struct {
	cfg     config.ProviderConfig
	bus     *logbus.Bus
	baseURL *url.URL
	limiter *rate.Limiter
	opts    Options

	mu          sync.Mutex
	outageStart time.Time
}

var _ provider.Marketplace = (*Client)(nil)

func New(cfg config.ProviderConfig, bus *logbus.Bus, opts Options) *Client {
	u, _ := url.Parse(cfg.BaseURL)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LeaderWindow <= 0 {
		opts.LeaderWindow = defaultLeaderWindow
	}
	qps := rate.Limit(cfg.QPS)
	if cfg.QPS <= 0 {
		qps = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		bus:     bus,
		baseURL: u,
		limiter: rate.NewLimiter(qps, burst),
		opts:    opts,
	}
}

func (c *Client) Name() string { return "shopgoodwill" }

type loginReq struct {
	Browser         string `json:"browser"`
	Remember        bool   `json:"remember"`
	ClientIPAddress string `json:"clientIpAddress"`
	AppVersion      string `json:"appVersion"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

type loginResp struct {
	AccessToken string `json:"accessToken"`
	Message     string `json:"message,omitempty"`
}

type favoritesResp struct {
	Data []favoriteItem `json:"data"`
}

type favoriteItem struct {
	ItemID       jsonNumber `json:"itemId"`
	Title        string     `json:"title"`
	CurrentPrice jsonNumber `json:"currentPrice"`
	EndTime      string     `json:"endTime"`
	Notes        string     `json:"notes"`
	SellerID     jsonNumber `json:"sellerId"`
	WatchlistID  jsonNumber `json:"watchlistId"`
}

type itemDetailResp struct {
	BidHistory struct {
		BidSummary []struct {
			BidderName string `json:"bidderName"`
		} `json:"bidSummary"`
	} `json:"bidHistory"`
}

type placeBidReq struct {
	ItemID    int64  `json:"itemId"`
	BidAmount string `json:"bidAmount"`
	SellerID  int64  `json:"sellerId"`
	Quantity  int    `json:"quantity"`
}

type placeBidResp struct {
	Status  *bool  `json:"status"`
	Message string `json:"message,omitempty"`
}

type saveNoteReq struct {
	Notes       string `json:"notes"`
	WatchlistID int64  `json:"watchlistId"`
}

// ValidateToken checks a bearer token against an endpoint that needs login.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	client, _, err := c.newClient(model.Session{Token: token})
	if err != nil {
		return err
	}
	resp, err := client.R().
		SetContext(ctx).
		Post("/SaveSearches/GetSaveSearches")
	if err != nil {
		return fmt.Errorf("validate token: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return provider.ErrRejected
	}
	if resp.IsError() {
		return fmt.Errorf("validate token: http %d", resp.StatusCode())
	}
	return nil
}

// Login signs in with obfuscated credentials. The session carries the bearer
// token and the cookies of the sign-in page.
func (c *Client) Login(ctx context.Context, encUsername, encPassword string) (model.Session, error) {
	client, jar, err := c.newClient(model.Session{})
	if err != nil {
		return model.Session{}, err
	}

	if c.cfg.LoginPageURL != "" {
		// only its cookies matter
		if _, err := client.R().SetContext(ctx).Get(c.cfg.LoginPageURL); err != nil {
			c.log("warn", "login page unavailable", map[string]any{"error": err.Error()})
		}
	}

	var out loginResp
	resp, err := client.R().
		SetContext(ctx).
		SetBody(loginReq{
			Browser:         loginBrowser,
			ClientIPAddress: loginClientIP,
			AppVersion:      loginAppVersion,
			Username:        encUsername,
			Password:        encPassword,
		}).
		SetResult(&out).
		Post("/SignIn/Login")
	if err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return model.Session{}, provider.ErrRejected
	case resp.IsError():
		return model.Session{}, fmt.Errorf("login: http %d", resp.StatusCode())
	case strings.EqualFold(strings.TrimSpace(out.Message), badCredentialsMessage):
		return model.Session{}, provider.ErrRejected
	case strings.TrimSpace(out.AccessToken) == "":
		msg := out.Message
		if msg == "" {
			msg = "no access token"
		}
		return model.Session{}, fmt.Errorf("%w: %s", provider.ErrRejected, msg)
	}

	return model.Session{
		Token:   out.AccessToken,
		Cookies: c.exportCookies(jar),
	}, nil
}

// FetchFavorites returns the open favorites of the session's account.
func (c *Client) FetchFavorites(ctx context.Context, session model.Session) ([]model.Listing, error) {
	client, _, err := c.newClient(session)
	if err != nil {
		return nil, err
	}
	var out favoritesResp
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("Type", "open").
		SetBody(map[string]any{}).
		SetResult(&out).
		Post("/Favorite/GetAllFavoriteItemsByType")
	if err := responseError("fetch favorites", resp, err); err != nil {
		return nil, err
	}

	now := c.opts.Now()
	listings := make([]model.Listing, 0, len(out.Data))
	for _, item := range out.Data {
		l, err := item.listing(now)
		if err != nil {
			c.log("warn", "skipping malformed favorite", map[string]any{"itemId": string(item.ItemID), "error": err.Error()})
			continue
		}
		if c.opts.LookupLeaders && l.Open() && l.Remaining(now) <= c.opts.LeaderWindow {
			leader, err := c.leadingBidder(ctx, client, l.ItemID)
			if err != nil {
				if errors.Is(err, provider.ErrUnauthorized) {
					return nil, err
				}
				c.log("warn", "leading bidder lookup failed", map[string]any{"itemId": l.ItemID, "error": err.Error()})
			}
			l.LeadingBidder = leader
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func (c *Client) leadingBidder(ctx context.Context, client *resty.Client, itemID int64) (string, error) {
	var out itemDetailResp
	resp, err := client.R().
		SetContext(ctx).
		SetPathParam("itemId", fmt.Sprint(itemID)).
		SetResult(&out).
		Get("/itemDetail/GetItemDetailModelByItemId/{itemId}")
	if err := responseError("item detail", resp, err); err != nil {
		return "", err
	}
	if len(out.BidHistory.BidSummary) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.BidHistory.BidSummary[0].BidderName), nil
}

func (c *Client) PlaceBid(ctx context.Context, session model.Session, intent model.BidIntent) (provider.BidResult, error) {
	client, _, err := c.newClient(session)
	if err != nil {
		return provider.BidResult{}, err
	}
	// a bid is sent once: a 5xx or timeout may still have been accepted
	client.SetRetryCount(0)
	var out placeBidResp
	resp, err := client.R().
		SetContext(ctx).
		SetBody(placeBidReq{
			ItemID:    intent.ItemID,
			BidAmount: intent.Amount.StringFixed(2),
			SellerID:  intent.SellerID,
			Quantity:  1,
		}).
		SetResult(&out).
		Post("/ItemBid/PlaceBid")
	if err := responseError("place bid", resp, err); err != nil {
		return provider.BidResult{}, err
	}
	msg := plainText(out.Message)
	if out.Status != nil && !*out.Status {
		if msg == "" {
			msg = "bid not accepted"
		}
		return provider.BidResult{Message: msg}, fmt.Errorf("%w: %s", provider.ErrBidRejected, msg)
	}
	return provider.BidResult{Accepted: true, Message: msg}, nil
}

func (c *Client) AddFavorite(ctx context.Context, session model.Session, itemID int64) error {
	client, _, err := c.newClient(session)
	if err != nil {
		return err
	}
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("itemId", fmt.Sprint(itemID)).
		Get("/Favorite/AddToFavorite")
	return responseError("add favorite", resp, err)
}

// SetFavoriteNote replaces the note of a favorite, truncated to what the
// marketplace stores.
func (c *Client) SetFavoriteNote(ctx context.Context, session model.Session, watchlistID int64, text string) error {
	if r := []rune(text); len(r) > note.MaxLength {
		c.log("warn", "note truncated", map[string]any{"watchlistId": watchlistID, "length": len(r)})
		text = string(r[:note.MaxLength])
	}
	client, _, err := c.newClient(session)
	if err != nil {
		return err
	}
	resp, err := client.R().
		SetContext(ctx).
		SetBody(saveNoteReq{Notes: text, WatchlistID: watchlistID}).
		Post("/Favorite/Save")
	return responseError("save note", resp, err)
}

func (c *Client) newClient(session model.Session) (*resty.Client, *cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, err
	}
	c.importCookies(jar, session.Cookies)

	client := resty.New().
		SetBaseURL(c.cfg.BaseURL).
		SetTimeout(c.cfg.Timeout()).
		SetCookieJar(jar).
		SetRetryCount(c.cfg.Retry.Count).
		SetRetryWaitTime(c.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(c.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	client.SetHeader("User-Agent", NormalizeUserAgent(c.cfg.UserAgent))
	if session.Token != "" {
		client.SetHeader("Authorization", "Bearer "+session.Token)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
		c.log("debug", "http request", map[string]any{
			"method": req.Method,
			"url":    req.URL,
		})
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if resp.StatusCode() >= 500 {
			c.markDown(fmt.Sprintf("http %d", resp.StatusCode()))
		} else {
			c.markUp()
		}
		return nil
	})
	client.OnError(func(_ *resty.Request, err error) {
		var re *resty.ResponseError
		if errors.As(err, &re) {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		c.markDown(err.Error())
	})

	return client, jar, nil
}

// markDown and markUp log the start and end of a marketplace outage once each.
func (c *Client) markDown(reason string) {
	c.mu.Lock()
	started := c.outageStart.IsZero()
	if started {
		c.outageStart = c.opts.Now()
	}
	c.mu.Unlock()
	if started {
		c.log("warn", "marketplace outage started", map[string]any{"reason": reason})
	}
}

func (c *Client) markUp() {
	c.mu.Lock()
	start := c.outageStart
	c.outageStart = time.Time{}
	c.mu.Unlock()
	if !start.IsZero() {
		c.log("info", "marketplace outage ended", map[string]any{"durationMs": c.opts.Now().Sub(start).Milliseconds()})
	}
}

func (c *Client) log(level, msg string, fields map[string]any) {
	if c.bus != nil {
		c.bus.Log(level, msg, fields)
	}
}

func (c *Client) importCookies(jar *cookiejar.Jar, entries []model.CookieJarEntry) {
	for _, entry := range entries {
		u, err := url.Parse(entry.URL)
		if err != nil {
			continue
		}
		jar.SetCookies(u, model.CookiesToHTTP(entry.Cookies))
	}
}

func (c *Client) exportCookies(jar *cookiejar.Jar) []model.CookieJarEntry {
	if c.baseURL == nil {
		return nil
	}
	u := *c.baseURL
	u.Path = "/"
	cookies := jar.Cookies(&u)
	if len(cookies) == 0 {
		return nil
	}
	return []model.CookieJarEntry{
		{URL: u.String(), Cookies: model.CookiesFromHTTP(cookies)},
	}
}

func responseError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, provider.ErrUnauthorized)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: http %d", op, resp.StatusCode())
	}
	return nil
}

func (f favoriteItem) listing(now time.Time) (model.Listing, error) {
	id, err := f.ItemID.Int64()
	if err != nil {
		return model.Listing{}, fmt.Errorf("itemId: %w", err)
	}
	end, err := ParseTimestamp(f.EndTime)
	if err != nil {
		return model.Listing{}, err
	}
	price := decimal.Zero
	if f.CurrentPrice != "" {
		if price, err = decimal.NewFromString(string(f.CurrentPrice)); err != nil {
			return model.Listing{}, fmt.Errorf("currentPrice: %w", err)
		}
	}
	sellerID, _ := f.SellerID.Int64()
	watchlistID, _ := f.WatchlistID.Int64()

	state := model.AuctionOpen
	if !end.After(now) {
		state = model.AuctionClosed
	}
	return model.Listing{
		ItemID:       id,
		Title:        strings.TrimSpace(f.Title),
		CurrentPrice: price,
		EndTime:      end,
		State:        state,
		Note:         f.Notes,
		SellerID:     sellerID,
		WatchlistID:  watchlistID,
	}, nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// plainText strips the HTML the bid endpoint wraps its messages in.
func plainText(s string) string {
	return strings.Join(strings.Fields(tagPattern.ReplaceAllString(s, " ")), " ")
}
