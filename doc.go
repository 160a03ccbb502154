/*
Package luxsession provides server side sessions with per-session locking,
idle swapping to durable storage and background garbage collection.

A Session is a bag of named byte values addressed by a cookie. Every session
carries a cooperative lock: the Manager acquires it when a request opens the
session and releases it when the request closes it, so concurrent requests
sharing a cookie are serialized instead of overwriting each other.

Key Features:

  - Pluggable Storage: sessions live in a MemoryStore; a Swapper moves idle
    sessions to files, SQLite (CGO-free), PostgreSQL, Memcached or Redis and
    restores them transparently on the next request.
  - Passive Maintenance: garbage collection and idle swapping are scheduled
    from regular traffic onto a single background Worker with a bounded queue,
    at most one pass of each kind at a time.
  - Versioned Binary Format: swapped sessions use a compact little-endian
    layout; unreadable blobs are discarded and treated as a missing session.
  - Secure default cookie settings (HttpOnly, SameSite=Lax, Secure for TLS
    requests) and session id regeneration against fixation.
  - Prometheus metrics and log/slog logging, both optional.

Usage:

	store, err := luxsession.NewFileStore(luxsession.FileConfig{})
	if err != nil {
		log.Fatal(err)
	}

	mgr := luxsession.NewManager(luxsession.Config{
		Store:      store,
		Expiration: 30 * time.Minute,
	})
	defer mgr.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s := luxsession.FromContext(r.Context())
		visits := s.GetInt64("visits", 0) + 1
		s.SetInt64("visits", visits)
		fmt.Fprintf(w, "visit %d", visits)
	})
	http.ListenAndServe(":8080", mgr.Middleware(mux))

Without Middleware, pair Manager.Open with Manager.CloseSession.

Thread Safety:

Manager, stores and Worker are safe for concurrent use. Session value methods
are internally synchronized, but a session should only be used by the holder
of its lock.
*/
package luxsession
