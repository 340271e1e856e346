package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/rendercache/cache"
)

func ExampleStore_GetOrCompute() {
	ctx := context.Background()
	store := cache.NewStore(cache.StoreConfig{})

	key, _ := cache.NewDeriver("build-1").Derive(cache.Call{
		Function: "app/products.List",
		Args:     []any{"shoes"},
	})

	compute := func(context.Context) ([]byte, cache.Meta, error) {
		profile := cache.Profile{Stale: time.Minute, Revalidate: 5 * time.Minute, Expire: time.Hour}
		return []byte("<ul>shoes</ul>"), cache.Meta{Tags: []cache.Tag{"products"}, Profile: profile}, nil
	}

	_, outcome, _ := store.GetOrCompute(ctx, key, compute)
	fmt.Println("first:", outcome)

	entry, outcome, _ := store.GetOrCompute(ctx, key, compute)
	fmt.Println("second:", outcome, string(entry.Value))

	n, _ := store.InvalidateByTag(ctx, "products", cache.ModeImmediate)
	fmt.Println("invalidated:", n)

	_, outcome, _ = store.GetOrCompute(ctx, key, compute)
	fmt.Println("third:", outcome)
	// Output:
	// first: miss
	// second: hit <ul>shoes</ul>
	// invalidated: 1
	// third: miss
}

func ExampleResolve() {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := &cache.Entry{
		CreatedAt: created,
		Profile:   cache.Profile{Stale: 10 * time.Second, Revalidate: 60 * time.Second, Expire: 120 * time.Second},
	}

	for _, s := range []int{9, 11, 59, 121} {
		fmt.Printf("t=%d %s\n", s, cache.Resolve(entry, created.Add(time.Duration(s)*time.Second)))
	}
	// Output:
	// t=9 fresh
	// t=11 stale
	// t=59 stale
	// t=121 expired
}
