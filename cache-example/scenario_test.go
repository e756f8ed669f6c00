package main

import (
	"testing"
	"time"

	"github.com/gyuho/mlcache/cluster"
)

func Test_runScenarios(t *testing.T) {
	rs := runScenarios(cluster.Config{
		RandSeed:      1,
		ClientTimeout: 200 * time.Millisecond,
		CacheTimeout:  100 * time.Millisecond,
		StoreTimeout:  300 * time.Millisecond,
	})
	if len(rs) != len(scenarios) {
		t.Fatalf("results expected %d, got %d", len(scenarios), len(rs))
	}
	for i, r := range rs {
		if r.Err != nil {
			t.Fatalf("#%d: %q failed (%v)", i, r.Name, r.Err)
		}
	}
}
