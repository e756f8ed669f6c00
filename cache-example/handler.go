package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gyuho/mlcache/cachepb"
	"github.com/gyuho/mlcache/cluster"
)

// handler is the HTTP control surface of a running hierarchy.
//
//	PUT  /clients/{client}/keys/{key}?value=&critical=&target=
//	GET  /clients/{client}/keys/{key}?critical=&target=
//	GET  /nodes
//	GET  /nodes/{id}
//	POST /nodes/{id}/crash
//	POST /nodes/{id}/recover
//
// Reads and writes are instantiated and answered right away;
// their outcome shows up in the status of the client.
type handler struct {
	c       *cluster.Cluster
	timeout time.Duration
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")

	ctx, cancel := context.WithTimeout(req.Context(), h.timeout)
	defer cancel()

	switch {
	case len(parts) == 4 && parts[0] == "clients" && parts[2] == "keys":
		h.serveKey(ctx, rw, req, cachepb.NodeID(parts[1]), parts[3])

	case len(parts) == 1 && parts[0] == "nodes":
		if req.Method != http.MethodGet {
			methodNotAllowed(rw, http.MethodGet)
			return
		}
		writeJSON(rw, h.c.Statuses())

	case len(parts) == 2 && parts[0] == "nodes":
		if req.Method != http.MethodGet {
			methodNotAllowed(rw, http.MethodGet)
			return
		}
		st, err := h.c.Status(cachepb.NodeID(parts[1]))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(rw, st)

	case len(parts) == 3 && parts[0] == "nodes" && (parts[2] == "crash" || parts[2] == "recover"):
		if req.Method != http.MethodPost {
			methodNotAllowed(rw, http.MethodPost)
			return
		}
		id := cachepb.NodeID(parts[1])
		if _, ok := h.c.Role(id); !ok {
			http.Error(rw, fmt.Sprintf("unknown node %q", id), http.StatusNotFound)
			return
		}
		var err error
		if parts[2] == "crash" {
			err = h.c.Crash(ctx, id)
		} else {
			err = h.c.Recover(ctx, id)
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(rw, "%s %s\n", parts[2], id)

	default:
		http.NotFound(rw, req)
	}
}

func (h *handler) serveKey(ctx context.Context, rw http.ResponseWriter, req *http.Request, client cachepb.NodeID, keyStr string) {
	key, err := strconv.ParseInt(keyStr, 10, 64)
	if err != nil {
		http.Error(rw, fmt.Sprintf("invalid key %q", keyStr), http.StatusBadRequest)
		return
	}
	if r, ok := h.c.Role(client); !ok || r != cachepb.NODE_ROLE_CLIENT {
		http.Error(rw, fmt.Sprintf("unknown client %q", client), http.StatusNotFound)
		return
	}

	q := req.URL.Query()
	critical := false
	if s := q.Get("critical"); s != "" {
		if critical, err = strconv.ParseBool(s); err != nil {
			http.Error(rw, fmt.Sprintf("invalid critical %q", s), http.StatusBadRequest)
			return
		}
	}
	target := cachepb.NodeID(q.Get("target"))
	if target == cachepb.None {
		target = h.c.L2s()[0]
	}

	switch req.Method {
	case http.MethodPut:
		s := q.Get("value")
		value, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(rw, fmt.Sprintf("invalid value %q", s), http.StatusBadRequest)
			return
		}
		if err = h.c.InstantiateWrite(ctx, client, target, key, value, critical); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(rw, "%s writing %d = %d via %s (critical %v)\n", client, key, value, target, critical)

	case http.MethodGet:
		if err = h.c.InstantiateRead(ctx, client, target, key, critical); err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(rw, "%s reading %d via %s (critical %v)\n", client, key, target, critical)

	default:
		methodNotAllowed(rw, http.MethodPut, http.MethodGet)
	}
}

func methodNotAllowed(rw http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		rw.Header().Add("Allow", m)
	}
	http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Warningf("cannot encode response (%v)", err)
	}
}
