package main

import (
	"flag"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"goodwill_sniper/internal/mockmarket"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	items := flag.Int("items", 6, "number of seeded auctions")
	spread := flag.Duration("spread", 20*time.Minute, "auctions end evenly within this window")
	flag.Parse()

	m := mockmarket.New(mockmarket.Options{})
	now := time.Now()
	for i := 0; i < *items; i++ {
		id := int64(200000 + i)
		end := now.Add(time.Duration(i+1) * *spread / time.Duration(*items))
		m.AddItem(mockmarket.Item{
			ItemID:   id,
			Title:    "Mock auction " + decimal.NewFromInt(id).String(),
			Price:    decimal.NewFromFloat(float64(rand.Intn(4000)) / 100).Round(2),
			EndTime:  end,
			SellerID: 100 + int64(i%3),
		})
		if i%2 == 0 {
			m.Favorite(id, "")
		}
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock market listening on %s (token for access_token: %s)", *addr, m.IssueToken())
	log.Fatal(srv.ListenAndServe())
}
