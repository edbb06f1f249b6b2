package main

import (
	"sync/atomic"
	"time"

	"github.com/matst80/gonetcat/internal/relay"
)

// Stats represents the running byte totals for the metrics API.
type Stats struct {
	Sent     uint64 `json:"sent"`
	Received uint64 `json:"received"`
	Now      string `json:"now"`
}

var activeStats atomic.Pointer[relay.Stats]

func collectStats(st *relay.Stats) Stats {
	out := Stats{Now: time.Now().UTC().Format(time.RFC3339)}
	if st != nil {
		out.Sent, out.Received = st.Sent(), st.Received()
	}
	return out
}
