package session

import "sync"

type registryKey struct {
	studentID string
	examID    string
}

// Registry holds the live sessions of this process, one per student and
// exam, so a reconnecting student resumes the same attempt.
type Registry struct {
	mu       sync.Mutex
	sessions map[registryKey]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[registryKey]*Session)}
}

// Get returns the live session of a student on an exam.
func (r *Registry) Get(studentID, examID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[registryKey{studentID, examID}]
	return s, ok
}

// GetOrCreate returns the live session or registers the one built by create.
// created tells which happened. A session is dropped from the registry as
// soon as it finishes.
func (r *Registry) GetOrCreate(studentID, examID string, create func() (*Session, error)) (s *Session, created bool, err error) {
	key := registryKey{studentID, examID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[key]; ok && existing.State() == StateActive {
		return existing, false, nil
	}

	s, err = create()
	if err != nil {
		return nil, false, err
	}
	r.sessions[key] = s

	go func() {
		<-s.Done()
		r.remove(key, s)
	}()
	return s, true, nil
}

func (r *Registry) remove(key registryKey, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[key] == s {
		delete(r.sessions, key)
	}
}

// ByExam returns the live sessions of an exam.
func (r *Registry) ByExam(examID string) []*Session {
	return r.filter(func(k registryKey) bool { return k.examID == examID })
}

// ByStudent returns the live sessions of a student.
func (r *Registry) ByStudent(studentID string) []*Session {
	return r.filter(func(k registryKey) bool { return k.studentID == studentID })
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// TerminateExam force-finishes every live session of an exam and returns how
// many it ended.
func (r *Registry) TerminateExam(examID string) int {
	return terminateAll(r.ByExam(examID))
}

// TerminateStudent force-finishes every live session of a student.
func (r *Registry) TerminateStudent(studentID string) int {
	return terminateAll(r.ByStudent(studentID))
}

// TerminateAll force-finishes every live session, as done on shutdown.
func (r *Registry) TerminateAll() int {
	return terminateAll(r.filter(func(registryKey) bool { return true }))
}

func terminateAll(sessions []*Session) int {
	n := 0
	for _, s := range sessions {
		if _, ok := s.Terminate(); ok {
			n++
		}
	}
	return n
}

func (r *Registry) filter(match func(registryKey) bool) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for k, s := range r.sessions {
		if match(k) {
			out = append(out, s)
		}
	}
	return out
}
