package session

import "sort"

// Store holds the live sessions keyed by peer address. Owned by the tick
// goroutine.
type Store struct {
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Add(s *Session) { st.sessions[s.Addr] = s }

func (st *Store) Get(addr string) *Session { return st.sessions[addr] }

func (st *Store) Remove(addr string) { delete(st.sessions, addr) }

func (st *Store) Count() int { return len(st.sessions) }

// ForEach visits sessions in address order so output is deterministic.
func (st *Store) ForEach(fn func(*Session)) {
	addrs := make([]string, 0, len(st.sessions))
	for a := range st.sessions {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		if s, ok := st.sessions[a]; ok {
			fn(s)
		}
	}
}
