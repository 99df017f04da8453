package delivery

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"meld/internal/domain"
)

// Server is an in-memory delivery service. State lives for the process
// lifetime; persistence is a deployment concern, not a protocol one.
type Server struct {
	log zerolog.Logger

	mu          sync.Mutex
	keyPackages map[string][][]byte
	groups      map[string][]domain.SequencedMessage
	welcomes    map[string][][]byte
}

// NewServer returns a delivery server logging through log.
func NewServer(log zerolog.Logger) *Server {
	return &Server{
		log:         log,
		keyPackages: make(map[string][][]byte),
		groups:      make(map[string][]domain.SequencedMessage),
		welcomes:    make(map[string][][]byte),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /keypackages/{user}", s.publishKeyPackages)
	mux.HandleFunc("POST /keypackages/{user}/claim", s.claimKeyPackage)
	mux.HandleFunc("POST /groups/{gid}/messages", s.postGroupMessage)
	mux.HandleFunc("GET /groups/{gid}/messages", s.fetchGroupMessages)
	mux.HandleFunc("POST /welcomes/{user}", s.postWelcome)
	mux.HandleFunc("GET /welcomes/{user}", s.fetchWelcomes)
	mux.HandleFunc("POST /welcomes/{user}/ack", s.ackWelcomes)
	return mux
}

func (s *Server) publishKeyPackages(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	var in struct {
		Packages [][]byte `json:"packages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.keyPackages[user] = append(s.keyPackages[user], in.Packages...)
	n := len(s.keyPackages[user])
	s.mu.Unlock()

	s.log.Info().Str("user", user).Int("added", len(in.Packages)).Int("available", n).
		Msg("key packages published")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) claimKeyPackage(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	s.mu.Lock()
	queue := s.keyPackages[user]
	var pkg []byte
	if len(queue) > 0 {
		pkg = queue[0]
		s.keyPackages[user] = queue[1:]
	}
	s.mu.Unlock()

	if pkg == nil {
		s.log.Warn().Str("user", user).Msg("key package claim failed, none available")
		http.Error(w, "no key packages available", http.StatusNotFound)
		return
	}
	s.log.Info().Str("user", user).Msg("key package claimed")
	writeJSON(w, struct {
		Package []byte `json:"package"`
	}{Package: pkg})
}

func (s *Server) postGroupMessage(w http.ResponseWriter, r *http.Request) {
	gid := r.PathValue("gid")
	var in struct {
		Message []byte `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	seq := uint64(len(s.groups[gid]) + 1)
	s.groups[gid] = append(s.groups[gid], domain.SequencedMessage{Seq: seq, Message: in.Message})
	s.mu.Unlock()

	s.log.Info().Str("group", gid).Uint64("seq", seq).Int("bytes", len(in.Message)).
		Msg("group message stored")
	writeJSON(w, struct {
		Seq uint64 `json:"seq"`
	}{Seq: seq})
}

func (s *Server) fetchGroupMessages(w http.ResponseWriter, r *http.Request) {
	gid := r.PathValue("gid")
	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)

	s.mu.Lock()
	all := s.groups[gid]
	out := make([]domain.SequencedMessage, 0)
	for _, m := range all {
		if m.Seq > after {
			out = append(out, m)
		}
	}
	s.mu.Unlock()

	writeJSON(w, out)
}

func (s *Server) postWelcome(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	var in struct {
		Welcome []byte `json:"welcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.welcomes[user] = append(s.welcomes[user], in.Welcome)
	s.mu.Unlock()

	s.log.Info().Str("user", user).Msg("welcome queued")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fetchWelcomes(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	s.mu.Lock()
	out := append([][]byte(nil), s.welcomes[user]...)
	s.mu.Unlock()
	writeJSON(w, out)
}

func (s *Server) ackWelcomes(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	var in struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Count < 0 {
		http.Error(w, "count must not be negative", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	queue := s.welcomes[user]
	if in.Count > len(queue) {
		in.Count = len(queue)
	}
	s.welcomes[user] = queue[in.Count:]
	s.mu.Unlock()

	s.log.Info().Str("user", user).Int("acked", in.Count).Msg("welcomes acknowledged")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
