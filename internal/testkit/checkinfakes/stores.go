package checkinfakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/models"
)

// MemberStore is an in-memory MemberStore fake for tests.
type MemberStore struct {
	mu      sync.Mutex
	Members map[int64]models.Member
	// Err, when set, is returned by every call.
	Err error
}

// NewMemberStore constructs a MemberStore fake holding members.
func NewMemberStore(members ...models.Member) *MemberStore {
	s := &MemberStore{Members: make(map[int64]models.Member)}
	for _, m := range members {
		s.Members[m.ID] = m
	}
	return s
}

func (s *MemberStore) Put(m models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Members[m.ID] = m
}

func (s *MemberStore) GetByID(_ context.Context, id int64) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.Members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemberStore) GetByCredential(_ context.Context, credential string) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, m := range s.Members {
		if m.QRCredential != "" && m.QRCredential == credential {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *MemberStore) AssignCredential(_ context.Context, id int64, credential string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	m, ok := s.Members[id]
	if !ok {
		return "", nil
	}
	if m.QRCredential == "" {
		m.QRCredential = credential
		s.Members[id] = m
	}
	return m.QRCredential, nil
}

// MembershipStore is an in-memory MembershipStore fake for tests.
type MembershipStore struct {
	mu          sync.Mutex
	Memberships map[int64]models.Membership
	Err         error
	// ExpireErr fails MarkExpired only.
	ExpireErr error
	Expired   []int64
}

func NewMembershipStore(memberships ...models.Membership) *MembershipStore {
	s := &MembershipStore{Memberships: make(map[int64]models.Membership)}
	for _, ms := range memberships {
		s.Memberships[ms.ID] = ms
	}
	return s
}

func (s *MembershipStore) Put(ms models.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Memberships[ms.ID] = ms
}

func (s *MembershipStore) Get(id int64) (models.Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.Memberships[id]
	return ms, ok
}

func (s *MembershipStore) ListActive(_ context.Context, memberID int64) ([]*models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*models.Membership
	for _, ms := range s.Memberships {
		if ms.MemberID == memberID && ms.Status == models.MembershipActive {
			ms := ms
			out = append(out, &ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.After(out[j].EndDate) })
	return out, nil
}

func (s *MembershipStore) MarkExpired(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExpireErr != nil {
		return s.ExpireErr
	}
	ms, ok := s.Memberships[id]
	if !ok || ms.Status != models.MembershipActive {
		return nil
	}
	ms.Status = models.MembershipExpired
	s.Memberships[id] = ms
	s.Expired = append(s.Expired, id)
	return nil
}

// VisitStore is an in-memory VisitStore fake for tests. Close only
// transitions active rows, matching the SQL store.
type VisitStore struct {
	mu     sync.Mutex
	Visits map[int64]models.Visit
	nextID int64
	Err    error
	// CloseErr fails Close only.
	CloseErr error
}

func NewVisitStore() *VisitStore {
	return &VisitStore{Visits: make(map[int64]models.Visit)}
}

func (s *VisitStore) GetByID(_ context.Context, id int64) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	v, ok := s.Visits[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *VisitStore) GetActiveByMember(_ context.Context, memberID int64) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var found *models.Visit
	for _, v := range s.Visits {
		if v.MemberID == memberID && v.Status == models.VisitActive {
			if found == nil || v.CheckInTime.After(found.CheckInTime) {
				v := v
				found = &v
			}
		}
	}
	return found, nil
}

func (s *VisitStore) LatestByCredential(_ context.Context, credential string) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var found *models.Visit
	for _, v := range s.Visits {
		if v.Credential == credential {
			if found == nil || v.CheckInTime.After(found.CheckInTime) {
				v := v
				found = &v
			}
		}
	}
	return found, nil
}

func (s *VisitStore) Create(_ context.Context, v *models.Visit) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.nextID++
	row := *v
	row.ID = s.nextID
	row.CreatedAt = v.CheckInTime
	row.UpdatedAt = v.CheckInTime
	s.Visits[row.ID] = row
	return &row, nil
}

func (s *VisitStore) Close(_ context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if s.CloseErr != nil {
		return false, s.CloseErr
	}
	v, ok := s.Visits[id]
	if !ok || v.Status != models.VisitActive {
		return false, nil
	}
	v.Status = models.VisitCompleted
	v.CheckOutTime = &at
	v.UpdatedAt = at
	s.Visits[id] = v
	return true, nil
}

func (s *VisitStore) ListStale(_ context.Context, cutoff time.Time) ([]*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*models.Visit
	for _, v := range s.Visits {
		if v.Status == models.VisitActive && v.CheckInTime.Before(cutoff) {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *VisitStore) CountActive(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := 0
	for _, v := range s.Visits {
		if v.Status == models.VisitActive {
			n++
		}
	}
	return n, nil
}

// ActiveFor counts active rows for memberID.
func (s *VisitStore) ActiveFor(memberID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.Visits {
		if v.MemberID == memberID && v.Status == models.VisitActive {
			n++
		}
	}
	return n
}

// Insert stores v as is, keeping its ID.
func (s *VisitStore) Insert(v models.Visit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID > s.nextID {
		s.nextID = v.ID
	}
	s.Visits[v.ID] = v
}
