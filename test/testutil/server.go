package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Server is an HTTP fixture that serves in-memory files with range support
// and can inject the failures seen from the real CDN.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	files       map[string][]byte
	gets        map[string]int
	heads       map[string]int
	fail        map[string]int
	cut         map[string]int64
	ignoreRange bool
	missing     int
}

// NewServer starts a fixture server that is closed when the test ends.
// Unknown paths answer 403, the way the dataset CDN does.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		files:   make(map[string][]byte),
		gets:    make(map[string]int),
		heads:   make(map[string]int),
		fail:    make(map[string]int),
		cut:     make(map[string]int64),
		missing: http.StatusForbidden,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Put publishes data at path
func (s *Server) Put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
}

// Remove unpublishes path
func (s *Server) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// FailNext makes the next n requests for path answer 503
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[path] = n
}

// CutNext makes the next GET for path stop after n body bytes while still
// announcing the full length.
func (s *Server) CutNext(path string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cut[path] = n
}

// IgnoreRange makes the server answer 200 with the full body to range requests
func (s *Server) IgnoreRange(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreRange = ignore
}

// MissingStatus sets the status returned for unknown paths
func (s *Server) MissingStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = code
}

// Gets returns the number of GET requests served for path
func (s *Server) Gets(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[path]
}

// TotalGets returns the number of GET requests across all paths
func (s *Server) TotalGets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.gets {
		total += n
	}
	return total
}

// TotalRequests returns GET plus HEAD requests across all paths
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.gets {
		total += n
	}
	for _, n := range s.heads {
		total += n
	}
	return total
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	path := r.URL.Path
	if r.Method == http.MethodHead {
		s.heads[path]++
	} else {
		s.gets[path]++
	}
	if s.fail[path] > 0 {
		s.fail[path]--
		s.mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	data, ok := s.files[path]
	missing := s.missing
	ignoreRange := s.ignoreRange
	cut, doCut := s.cut[path]
	if doCut && r.Method == http.MethodGet {
		delete(s.cut, path)
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "not found", missing)
		return
	}

	size := int64(len(data))
	w.Header().Set("ETag", fmt.Sprintf(`"%x"`, size))
	if !ignoreRange {
		w.Header().Set("Accept-Ranges", "bytes")
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		return
	}

	start, end := int64(0), size-1
	status := http.StatusOK
	if rng := r.Header.Get("Range"); rng != "" && !ignoreRange {
		first, last, _ := strings.Cut(strings.TrimPrefix(rng, "bytes="), "-")
		start, _ = strconv.ParseInt(first, 10, 64)
		if last != "" {
			end, _ = strconv.ParseInt(last, 10, 64)
		}
		if start >= size {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if end >= size {
			end = size - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		status = http.StatusPartialContent
	}

	body := data[start : end+1]
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if doCut && cut < int64(len(body)) {
		body = body[:cut]
	}
	w.Write(body)
}
