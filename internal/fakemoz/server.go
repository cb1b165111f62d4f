// Package fakemoz serves canned Bugzilla, Socorro, Mercurial and
// product-details answers over httptest, so packages can exercise their
// façades end to end without network access.
package fakemoz

import (
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// Put is one recorded PUT /rest/bug/{id}.
type Put struct {
	BugID int
	Body  map[string]any
}

// PutResult decides the answer to a PUT: status code and JSON body.
type PutResult func(ids []int, body map[string]any) (int, any)

// Server is an in-process fake of the Mozilla services mozdata talks to.
// Every setter is safe to call while requests are in flight.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	bugs        map[int]map[string]any
	history     map[int][]map[string]any
	comments    map[int][]map[string]any
	attachments map[int][]map[string]any
	users       []map[string]any

	revisions   map[string][]map[string]any
	rawRevs     map[string]string
	fileLogs    map[string][]map[string]any
	annotations map[string]map[string]any

	superSearch     func(url.Values) any
	signatureBugs   []map[string]any
	productVersions []map[string]any
	platforms       []map[string]any
	adi             []map[string]any
	processed       map[string]map[string]any

	majorReleases map[string]string
	reviewDiffs   map[string]string

	putResult PutResult
	puts      []Put
	requests  []string
}

// New starts an empty fake and stops it when t ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		bugs:        map[int]map[string]any{},
		history:     map[int][]map[string]any{},
		comments:    map[int][]map[string]any{},
		attachments: map[int][]map[string]any{},
		revisions:   map[string][]map[string]any{},
		rawRevs:     map[string]string{},
		fileLogs:    map[string][]map[string]any{},
		annotations: map[string]map[string]any{},
		processed:   map[string]map[string]any{},
		reviewDiffs: map[string]string{},
		superSearch: func(url.Values) any {
			return map[string]any{"hits": []any{}, "total": 0, "facets": map[string]any{}}
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/bug", s.handleBugs)
	mux.HandleFunc("PUT /rest/bug/{id}", s.handlePut)
	mux.HandleFunc("GET /rest/bug/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /rest/bug/{id}/comment", s.handleComments)
	mux.HandleFunc("GET /rest/bug/{id}/attachment", s.handleAttachments)
	mux.HandleFunc("GET /rest/user", s.handleUsers)
	mux.HandleFunc("GET /api/{endpoint}/", s.handleSocorro)
	mux.HandleFunc("GET /1.0/{file}", s.handleProductDetails)
	mux.HandleFunc("GET /r/{id}/diff/raw/", s.handleReviewDiff)
	mux.HandleFunc("GET /", s.handleHg)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()

		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)

	return s
}

// ProductDetailsURL is the product-details root served by the fake.
func (s *Server) ProductDetailsURL() string {
	return s.URL + "/1.0"
}

// Requests counts recorded requests whose "METHOD /path" starts with prefix.
func (s *Server) Requests(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, r := range s.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}

	return n
}

// AddBug stores a bug record; it must carry an "id".
func (s *Server) AddBug(bug map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bugs[toInt(bug["id"])] = bug
}

// AddHistory appends history entries to a bug.
func (s *Server) AddHistory(id int, entries ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[id] = append(s.history[id], entries...)
}

// AddComments appends comments to a bug.
func (s *Server) AddComments(id int, comments ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.comments[id] = append(s.comments[id], comments...)
}

// AddAttachments appends attachments to a bug.
func (s *Server) AddAttachments(id int, attachments ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attachments[id] = append(s.attachments[id], attachments...)
}

// AddUser stores a Bugzilla account.
func (s *Server) AddUser(user map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = append(s.users, user)
}

// AddRevision stores a json-rev record under repo (e.g. "mozilla-central").
func (s *Server) AddRevision(repo string, rev map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revisions[repo] = append(s.revisions[repo], rev)
}

// AddRawRevision stores the raw-rev text of node.
func (s *Server) AddRawRevision(repo, node, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rawRevs[repo+"@"+node] = raw
}

// AddFileLog appends filelog entries of path, newest first.
func (s *Server) AddFileLog(repo, path string, entries ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repo + "@" + path
	s.fileLogs[key] = append(s.fileLogs[key], entries...)
}

// SetAnnotation stores a json-annotate answer.
func (s *Server) SetAnnotation(repo, path string, annotation map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.annotations[repo+"@"+path] = annotation
}

// SetSuperSearch installs the SuperSearch responder.
func (s *Server) SetSuperSearch(fn func(url.Values) any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.superSearch = fn
}

// AddSignatureBug links a signature to a bug for /api/Bugs.
func (s *Server) AddSignatureBug(signature string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signatureBugs = append(s.signatureBugs, map[string]any{"id": id, "signature": signature})
}

// AddProductVersion appends a ProductVersions row.
func (s *Server) AddProductVersion(row map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.productVersions = append(s.productVersions, row)
}

// AddPlatform appends a Platforms row.
func (s *Server) AddPlatform(name, short string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.platforms = append(s.platforms, map[string]any{"name": name, "short_name": short})
}

// AddADI appends an ADI row.
func (s *Server) AddADI(row map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adi = append(s.adi, row)
}

// AddProcessedCrash stores a processed crash keyed by its uuid.
func (s *Server) AddProcessedCrash(crash map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[toString(crash["uuid"])] = crash
}

// SetMajorReleases sets the product-details version → date map.
func (s *Server) SetMajorReleases(releases map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.majorReleases = maps.Clone(releases)
}

// AddReviewDiff serves raw as the diff of review request id. The request
// itself lives at ReviewURL(id).
func (s *Server) AddReviewDiff(id int, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reviewDiffs[strconv.Itoa(id)] = raw
}

// ReviewURL is the review-request page an attachment points at.
func (s *Server) ReviewURL(id int) string {
	return s.URL + "/r/" + strconv.Itoa(id) + "/"
}

// SetPutResult installs the PUT responder. The default accepts every update.
func (s *Server) SetPutResult(fn PutResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putResult = fn
}

// Puts returns the recorded PUT requests.
func (s *Server) Puts() []Put {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.puts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": true, "message": what + " not found"})
}

// bugzilla

var searchControlParams = map[string]bool{
	"include_fields": true,
	"exclude_fields": true,
	"limit":          true,
	"offset":         true,
	"order":          true,
}

func (s *Server) handleBugs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	fields := splitList(params.Get("include_fields"))

	s.mu.Lock()
	defer s.mu.Unlock()

	bugs := []map[string]any{}
	faults := []map[string]any{}

	if raw := params.Get("id"); raw != "" {
		for _, part := range splitList(raw) {
			id, err := strconv.Atoi(part)
			if err != nil {
				continue
			}

			bug, ok := s.bugs[id]
			if !ok || bug["_private"] == true {
				faults = append(faults, map[string]any{
					"id": id, "faultCode": 102, "faultString": "You are not authorized to access bug " + part,
				})

				continue
			}

			bugs = append(bugs, project(bug, fields))
		}
	} else {
		for _, id := range slices.Sorted(maps.Keys(s.bugs)) {
			bug := s.bugs[id]
			if bug["_private"] == true || !matchesSearch(bug, params) {
				continue
			}

			bugs = append(bugs, project(bug, fields))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"bugs": bugs, "faults": faults})
}

func matchesSearch(bug map[string]any, params url.Values) bool {
	for key, values := range params {
		if searchControlParams[key] {
			continue
		}

		field, ok := bug[key]
		if !ok {
			return false
		}

		for _, want := range values {
			if !fieldHas(field, want) {
				return false
			}
		}
	}

	return true
}

func fieldHas(field any, want string) bool {
	switch v := field.(type) {
	case []any:
		for _, item := range v {
			if toString(item) == want {
				return true
			}
		}

		return false
	case []string:
		return slices.Contains(v, want)
	case []int:
		return slices.Contains(v, toInt(want))
	default:
		return toString(v) == want
	}
}

func project(record map[string]any, fields []string) map[string]any {
	out := map[string]any{}

	for key, value := range record {
		if strings.HasPrefix(key, "_") {
			continue
		}

		if len(fields) == 0 || slices.Contains(fields, key) {
			out[key] = value
		}
	}

	return out
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	var body map[string]any

	err = json.Unmarshal(data, &body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	var ids []int

	if list, ok := body["ids"].([]any); ok {
		for _, v := range list {
			ids = append(ids, toInt(v))
		}
	}

	s.mu.Lock()
	s.puts = append(s.puts, Put{BugID: toInt(r.PathValue("id")), Body: body})
	respond := s.putResult
	s.mu.Unlock()

	if respond == nil {
		changed := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			changed = append(changed, map[string]any{"id": id, "changes": map[string]any{}})
		}

		writeJSON(w, http.StatusOK, map[string]any{"bugs": changed})

		return
	}

	status, answer := respond(ids, body)
	writeJSON(w, status, answer)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := toInt(r.PathValue("id"))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bugs[id]; !ok {
		notFound(w, "bug")

		return
	}

	history := s.history[id]
	if history == nil {
		history = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bugs": []any{map[string]any{"id": id, "alias": nil, "history": history}},
	})
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	id := toInt(r.PathValue("id"))
	fields := splitList(r.URL.Query().Get("include_fields"))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bugs[id]; !ok {
		notFound(w, "bug")

		return
	}

	comments := make([]map[string]any, 0, len(s.comments[id]))
	for idx, c := range s.comments[id] {
		full := maps.Clone(c)
		full["bug_id"] = id

		if _, ok := full["count"]; !ok {
			full["count"] = idx
		}

		comments = append(comments, project(full, fields))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bugs":     map[string]any{strconv.Itoa(id): map[string]any{"comments": comments}},
		"comments": map[string]any{},
	})
}

func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request) {
	id := toInt(r.PathValue("id"))
	params := r.URL.Query()
	fields := splitList(params.Get("include_fields"))
	excluded := splitList(params.Get("exclude_fields"))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bugs[id]; !ok {
		notFound(w, "bug")

		return
	}

	list := make([]map[string]any, 0, len(s.attachments[id]))
	for _, a := range s.attachments[id] {
		full := project(a, fields)
		full["bug_id"] = id

		for _, key := range excluded {
			delete(full, key)
		}

		list = append(list, full)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bugs":        map[string]any{strconv.Itoa(id): list},
		"attachments": map[string]any{},
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	s.mu.Lock()
	defer s.mu.Unlock()

	users := []map[string]any{}

	for _, u := range s.users {
		switch {
		case params.Has("match"):
			match := strings.ToLower(params.Get("match"))
			if strings.Contains(strings.ToLower(toString(u["name"])), match) ||
				strings.Contains(strings.ToLower(toString(u["real_name"])), match) {
				users = append(users, u)
			}
		case params.Has("ids"):
			if slices.Contains(params["ids"], toString(u["id"])) {
				users = append(users, u)
			}
		case params.Has("names"):
			if slices.Contains(params["names"], toString(u["name"])) {
				users = append(users, u)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// socorro

func (s *Server) handleSocorro(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.PathValue("endpoint") {
	case "SuperSearch", "SuperSearchUnredacted":
		writeJSON(w, http.StatusOK, s.superSearch(params))
	case "Bugs":
		hits := []map[string]any{}

		for _, row := range s.signatureBugs {
			if slices.Contains(params["signatures"], toString(row["signature"])) {
				hits = append(hits, row)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "total": len(hits)})
	case "ProductVersions":
		hits := []map[string]any{}

		for _, row := range s.productVersions {
			if !params.Has("product") || toString(row["product"]) == params.Get("product") {
				hits = append(hits, row)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "total": len(hits)})
	case "Platforms":
		writeJSON(w, http.StatusOK, map[string]any{"hits": s.platforms, "total": len(s.platforms)})
	case "ADI":
		writeJSON(w, http.StatusOK, map[string]any{"hits": s.adi, "total": len(s.adi)})
	case "ProcessedCrash":
		crash, ok := s.processed[params.Get("crash_id")]
		if !ok {
			notFound(w, "crash")

			return
		}

		writeJSON(w, http.StatusOK, crash)
	default:
		notFound(w, "endpoint")
	}
}

// product-details

func (s *Server) handleProductDetails(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.PathValue("file") != "firefox_history_major_releases.json" || s.majorReleases == nil {
		notFound(w, "file")

		return
	}

	writeJSON(w, http.StatusOK, s.majorReleases)
}

func (s *Server) handleReviewDiff(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.reviewDiffs[r.PathValue("id")]
	if !ok {
		notFound(w, "review request")

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, raw)
}

// mercurial

func (s *Server) handleHg(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")

	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		notFound(w, "repository")

		return
	}

	repo, endpoint := path[:idx], path[idx+1:]
	params := r.URL.Query()
	node := params.Get("node")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch endpoint {
	case "json-rev":
		rev := s.findRevision(repo, node)
		if rev == nil {
			notFound(w, "revision")

			return
		}

		writeJSON(w, http.StatusOK, rev)
	case "raw-rev":
		rev := s.findRevision(repo, node)
		if rev == nil {
			notFound(w, "revision")

			return
		}

		raw, ok := s.rawRevs[repo+"@"+toString(rev["node"])]
		if !ok {
			notFound(w, "raw revision")

			return
		}

		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, raw)
	case "json-filelog":
		s.serveFileLog(w, repo, node, params)
	case "json-annotate":
		annotation, ok := s.annotations[repo+"@"+params.Get("file")]
		if !ok {
			notFound(w, "file")

			return
		}

		writeJSON(w, http.StatusOK, annotation)
	default:
		notFound(w, "endpoint")
	}
}

func (s *Server) findRevision(repo, node string) map[string]any {
	if node == "" {
		return nil
	}

	for _, rev := range s.revisions[repo] {
		if strings.HasPrefix(toString(rev["node"]), node) {
			return rev
		}
	}

	return nil
}

// serveFileLog pages through the file's history the way hgweb does: the
// page starts at node (inclusive) and holds at most revcount entries.
func (s *Server) serveFileLog(w http.ResponseWriter, repo, node string, params url.Values) {
	path := params.Get("file")

	entries, ok := s.fileLogs[repo+"@"+path]
	if !ok {
		notFound(w, "file")

		return
	}

	revcount := toInt(params.Get("revcount"))
	if revcount <= 0 {
		revcount = 60
	}

	start := 0

	for idx, e := range entries {
		if node != "" && strings.HasPrefix(toString(e["node"]), node) {
			start = idx

			break
		}
	}

	end := min(start+revcount, len(entries))

	writeJSON(w, http.StatusOK, map[string]any{
		"node":    node,
		"path":    path,
		"entries": entries[start:end],
	})
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	var out []string

	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case uint64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()

		return int(i)
	case string:
		i, _ := strconv.Atoi(n)

		return i
	default:
		return 0
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		data, _ := json.Marshal(x)

		return string(data)
	}
}
